package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
	"github.com/mamadbah2/farmtrace/internal/service/reporting"
)

const runTimeout = 10 * time.Minute

// CostRunner costs every lineage.
type CostRunner interface {
	RunAll(ctx context.Context) ([]*models.CostReport, error)
}

// SheetExporter appends rows to a spreadsheet range.
type SheetExporter interface {
	AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
}

// Notifier messages the farm manager.
type Notifier interface {
	NotifyManager(ctx context.Context, text string) error
}

// Options configures the scheduled costing job. Exporter and Notifier are optional.
type Options struct {
	Schedule   string
	Timezone   string
	SheetRange string
	Exporter   SheetExporter
	Notifier   Notifier
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	runner CostRunner
	opts   Options
	logger *zap.Logger
}

// NewScheduler creates a new scheduler instance running in the configured timezone.
func NewScheduler(runner CostRunner, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc := time.UTC
	if opts.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(opts.Timezone); err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
		}
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		runner: runner,
		opts:   opts,
		logger: logger,
	}, nil
}

// Start registers the costing job and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.opts.Schedule))

	if _, err := s.cron.AddFunc(s.opts.Schedule, s.runCosting); err != nil {
		return fmt.Errorf("schedule costing run %q: %w", s.opts.Schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runCosting() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce costs every lineage, exports the reports and notifies the manager.
// Export and notification failures are logged and do not stop the run.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.logger.Info("scheduled costing run started")

	reports, runErr := s.runner.RunAll(ctx)
	if runErr != nil {
		s.logger.Error("costing run had failures", zap.Error(runErr), zap.Int("reports", len(reports)))
	}

	if s.opts.Exporter != nil {
		var rows [][]interface{}
		for _, report := range reports {
			rows = append(rows, reporting.SheetRows(report)...)
		}
		if err := s.opts.Exporter.AppendRows(ctx, s.opts.SheetRange, rows); err != nil {
			s.logger.Error("failed to export cost reports", zap.Error(err))
		}
	}

	if s.opts.Notifier != nil && (len(reports) > 0 || runErr != nil) {
		if err := s.opts.Notifier.NotifyManager(ctx, digest(reports, runErr)); err != nil {
			s.logger.Error("failed to notify manager", zap.Error(err))
		}
	}

	s.logger.Info("scheduled costing run finished", zap.Int("reports", len(reports)))
}

func digest(reports []*models.CostReport, runErr error) string {
	lines := make([]string, 0, len(reports)+2)
	lines = append(lines, fmt.Sprintf("Daily costing: %d lineages costed.", len(reports)))
	for _, report := range reports {
		lines = append(lines, reporting.RenderSummary(report))
	}
	if runErr != nil {
		lines = append(lines, "Some lineages failed, check the server logs.")
	}
	return strings.Join(lines, "\n")
}
