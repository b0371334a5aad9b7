package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/modules/userimport/presentation/mappers"
	"github.com/iota-uz/lms-admin/modules/userimport/services"
)

// sourceOptions are the flags shared by preview and import.
type sourceOptions struct {
	file       string
	delimiter  string
	encoding   string
	courseID   int64
	actorID    int64
	actorEmail string
	memory     bool
	seed       string
}

func (o *sourceOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.file, "file", "", "Delimited input file (required)")
	cmd.Flags().StringVar(&o.delimiter, "delimiter", "semicolon", "Field delimiter: semicolon|comma|tab")
	cmd.Flags().StringVar(&o.encoding, "encoding", services.EncodingAuto, "Input encoding: auto|utf-8|iso-8859-1|windows-1250")
	cmd.Flags().Int64Var(&o.courseID, "course", 0, "Course id for a session import (0 imports users only)")
	cmd.Flags().Int64Var(&o.actorID, "actor", 0, "Id of the importing user (required)")
	cmd.Flags().BoolVar(&o.memory, "memory", false, "Run against in-memory stores instead of the database")
	cmd.Flags().StringVar(&o.seed, "seed", "", "YAML seed for --memory runs")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("actor")
}

func (o *sourceOptions) validate() error {
	if strings.TrimSpace(o.file) == "" {
		return withCode(exitUsage, fmt.Errorf("--file is required"))
	}
	if o.actorID <= 0 {
		return withCode(exitUsage, fmt.Errorf("--actor must be a positive id"))
	}
	if o.courseID < 0 {
		return withCode(exitUsage, fmt.Errorf("--course must not be negative"))
	}
	if _, err := services.ParseDelimiter(o.delimiter); err != nil {
		return withCode(exitUsage, err)
	}
	if o.seed != "" && !o.memory {
		return withCode(exitUsage, fmt.Errorf("--seed needs --memory"))
	}
	return nil
}

func newPreviewCmd() *cobra.Command {
	var opts sourceOptions

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Validate and classify a file without changing anything",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), opts.memory, opts.seed)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runPreview(cmd.Context(), rt, opts, cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	return cmd
}

func runPreview(ctx context.Context, rt *runtime, opts sourceOptions, out io.Writer) error {
	p, err := buildPreview(ctx, rt, opts)
	if err != nil {
		return err
	}
	return writeJSON(out, mappers.PreviewToViewModel(p, time.Time{}))
}

func buildPreview(ctx context.Context, rt *runtime, opts sourceOptions) (*services.Preview, error) {
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("read input: %w", err))
	}
	p, err := rt.imports.Preview(rt.bind(ctx), services.PreviewRequest{
		Name:       filepath.Base(opts.file),
		Data:       data,
		Delimiter:  opts.delimiter,
		Encoding:   opts.encoding,
		CourseID:   opts.courseID,
		ActorID:    opts.actorID,
		ActorEmail: opts.actorEmail,
	})
	if err != nil {
		return nil, previewError(err)
	}
	return p, nil
}

func previewError(err error) error {
	var fe *services.FatalError
	switch {
	case errors.As(err, &fe):
		return withCode(exitValidation, errors.New(fe.Diagnostic.String()))
	case errors.Is(err, course.ErrCourseNotFound):
		return withCode(exitUsage, err)
	case errors.Is(err, context.Canceled):
		return withCode(exitUsage, err)
	default:
		return withCode(exitDB, err)
	}
}
