package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/lms-admin/modules/userimport/presentation/mappers"
	"github.com/iota-uz/lms-admin/modules/userimport/presentation/viewmodels"
)

type importOptions struct {
	sourceOptions
	apply     bool
	outputDir string
}

type importOutput struct {
	Applied    bool                     `json:"applied"`
	Preview    *viewmodels.Preview      `json:"preview"`
	Result     *viewmodels.CommitResult `json:"result,omitempty"`
	ReportPath string                   `json:"report_path,omitempty"`
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import users (dry-run unless --apply)",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), opts.memory, opts.seed)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runImport(cmd.Context(), rt, opts, cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Apply changes (default is dry-run)")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "Directory for the report (default: IMPORT_REPORT_DIR)")
	cmd.Flags().StringVar(&opts.actorEmail, "notify", "", "Email the report to this address")
	return cmd
}

func runImport(ctx context.Context, rt *runtime, opts importOptions, out io.Writer) error {
	p, err := buildPreview(ctx, rt, opts.sourceOptions)
	if err != nil {
		return err
	}
	output := importOutput{Preview: mappers.PreviewToViewModel(p, time.Time{})}
	if !opts.apply {
		return writeJSON(out, output)
	}

	res, err := rt.imports.Commit(rt.bind(ctx), p)
	if err != nil {
		return withCode(exitDBWrite, fmt.Errorf("commit: %w", err))
	}
	output.Applied = true
	output.Result = mappers.CommitResultToViewModel(res)

	dir := opts.outputDir
	if dir == "" {
		dir = rt.reportDir
	}
	path, err := writeReport(dir, res.ReportName, res.Report)
	if err != nil {
		return withCode(exitDBWrite, err)
	}
	output.ReportPath = path

	if err := writeJSON(out, output); err != nil {
		return err
	}
	if res.Failed > 0 {
		return withCode(exitDBWrite, fmt.Errorf("%d of %d rows failed, see %s", res.Failed, len(p.Rows), path))
	}
	return nil
}
