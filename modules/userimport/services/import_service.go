package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iota-uz/lms-admin/modules/userimport/domain/aggregates/account"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/course"
	"github.com/iota-uz/lms-admin/modules/userimport/domain/entities/reservation"
	"github.com/iota-uz/lms-admin/pkg/composables"
	"github.com/iota-uz/lms-admin/pkg/eventbus"
)

var tracer = otel.Tracer("lms-admin/userimport")

type ImportOptions struct {
	MaxRows int
	Workers int
}

type PreviewRequest struct {
	// Name is the uploaded file name; it names the report.
	Name      string
	Data      []byte
	Delimiter string
	Encoding  string
	// CourseID selects a session import; 0 imports users only.
	CourseID   int64
	ActorID    int64
	ActorEmail string
}

// ImportService runs the two-phase import: Preview reads and classifies,
// Commit mutates.
type ImportService struct {
	accounts  account.Store
	courses   course.Gateway
	validator *Validator
	resolver  *Resolver
	engine    *CommitEngine
	publisher eventbus.EventBus
	opts      ImportOptions
}

func NewImportService(
	accounts account.Store,
	courses course.Gateway,
	reservations reservation.Store,
	tx Transactor,
	policy RolePolicy,
	publisher eventbus.EventBus,
	opts ImportOptions,
) *ImportService {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	return &ImportService{
		accounts:  accounts,
		courses:   courses,
		validator: NewValidator(opts.Workers),
		resolver:  NewResolver(courses, policy),
		engine:    NewCommitEngine(accounts, courses, NewUsernameAllocator(accounts, reservations), tx),
		publisher: publisher,
		opts:      opts,
	}
}

// Preview validates and classifies req without mutating anything. Batch-level
// problems are returned as *FatalError.
func (s *ImportService) Preview(ctx context.Context, req PreviewRequest) (_ *Preview, err error) {
	ctx, span := tracer.Start(ctx, "userimport.preview")
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			if errors.Is(err, ErrFatal) {
				result = "fatal"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		getMetrics().batchesTotal.WithLabelValues("preview", result).Inc()
		getMetrics().phaseLatency.WithLabelValues("preview").Observe(time.Since(start).Seconds())
		span.End()
	}()

	log := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"file":   req.Name,
		"course": req.CourseID,
		"actor":  req.ActorID,
	})

	file, err := Parse(req.Data, ParseOptions{
		Delimiter: req.Delimiter,
		Encoding:  req.Encoding,
		MaxRows:   s.opts.MaxRows,
	})
	if err != nil {
		log.WithError(err).Info("userimport: file rejected")
		return nil, err
	}
	span.SetAttributes(attribute.Int("userimport.rows", len(file.Rows)))

	cc, err := s.loadCourse(ctx, req.CourseID, file)
	if err != nil {
		return nil, err
	}

	validation, err := s.validator.ValidateAll(ctx, file.Rows, file.Columns, cc)
	if err != nil {
		return nil, err
	}

	snap, err := FetchSnapshot(ctx, s.accounts, validation.Rows)
	if err != nil {
		return nil, err
	}

	resolution, err := s.resolver.Resolve(ctx, validation.Rows, snap, cc, req.ActorID)
	if err != nil {
		return nil, err
	}

	diagnostics := append(append([]Diagnostic{}, validation.Diagnostics...), resolution.Diagnostics...)
	sort.SliceStable(diagnostics, func(i, j int) bool { return diagnostics[i].Line < diagnostics[j].Line })
	recordDiagnostics(diagnostics)

	if len(resolution.Rows) == 0 && len(resolution.ValidForReactivation) == 0 {
		log.Info("userimport: no valid rows")
		return nil, fatal(CodeNoValidRows, "no valid rows to import (%d rejected)", len(validation.Rejected)+len(resolution.Rejected))
	}

	outcomes := make(map[int]string, len(validation.Rejected)+len(resolution.Rejected))
	for line, d := range validation.Rejected {
		outcomes[line] = d.Message
	}
	for line, d := range resolution.Rejected {
		outcomes[line] = d.Message
	}

	p := &Preview{
		BatchID:              uuid.New(),
		Name:                 req.Name,
		ActorID:              req.ActorID,
		ActorEmail:           req.ActorEmail,
		CreatedAt:            time.Now().UTC(),
		File:                 file,
		Course:               cc,
		ValidLines:           len(resolution.Rows),
		ValidForCreation:     resolution.ValidForCreation,
		ValidForReactivation: resolution.ValidForReactivation,
		Rows:                 resolution.Rows,
		Diagnostics:          diagnostics,
		Outcomes:             outcomes,
	}
	log.WithFields(logrus.Fields{
		"batch":       p.BatchID.String(),
		"valid":       p.ValidLines,
		"create":      p.ValidForCreation,
		"reactivate":  len(p.ValidForReactivation),
		"diagnostics": len(diagnostics),
	}).Info("userimport: preview built")
	return p, nil
}

func (s *ImportService) loadCourse(ctx context.Context, courseID int64, file *ParsedFile) (*CourseContext, error) {
	if courseID == 0 {
		return nil, nil
	}
	c, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course %d: %w", courseID, err)
	}
	roles, err := s.courses.AllowedRoles(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load roles of course %d: %w", courseID, err)
	}

	cc := &CourseContext{Course: c, Roles: roles, Groups: map[string]course.Group{}}
	if file.Columns.Group < 0 {
		return cc, nil
	}
	nameSet := map[string]struct{}{}
	for _, row := range file.Rows {
		if name := file.Columns.cell(row.Cells, file.Columns.Group); name != "" {
			nameSet[name] = struct{}{}
		}
	}
	if len(nameSet) == 0 {
		return cc, nil
	}
	groups, err := s.courses.GroupsByName(ctx, courseID, sortedKeys(nameSet))
	if err != nil {
		return nil, fmt.Errorf("load groups of course %d: %w", courseID, err)
	}
	for name, g := range groups {
		cc.Groups[strings.ToLower(name)] = g
	}
	return cc, nil
}

// Commit applies p. It cannot be interrupted once started: cancellation of ctx
// is only honoured before the first row. Row failures are reported in the
// result, never returned as an error.
func (s *ImportService) Commit(ctx context.Context, p *Preview) (*CommitResult, error) {
	if p == nil || p.File == nil {
		return nil, errors.New("userimport: commit needs a preview")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	ctx, span := tracer.Start(ctx, "userimport.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("userimport.batch", p.BatchID.String()),
		attribute.Int("userimport.rows", len(p.Rows)),
	)
	start := time.Now()

	res := s.engine.Commit(ctx, p)

	report, err := BuildReport(p.File, res.Lines)
	if err != nil {
		return res, fmt.Errorf("build report: %w", err)
	}
	res.Report = report
	res.ReportName = ReportFileName(p.Name)

	result := "ok"
	if res.Failed > 0 {
		result = "partial"
	}
	getMetrics().batchesTotal.WithLabelValues("commit", result).Inc()
	getMetrics().phaseLatency.WithLabelValues("commit").Observe(time.Since(start).Seconds())

	log := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"batch":  p.BatchID.String(),
		"failed": res.Failed,
	})
	if s.publisher != nil {
		if err := s.publisher.PublishE(ctx, &ImportCommitted{Preview: p, Result: res}); err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
			res.NotifyErr = err
			log.WithError(err).Warn("userimport: report delivery failed")
		}
	}
	log.Info("userimport: batch committed")
	return res, nil
}
