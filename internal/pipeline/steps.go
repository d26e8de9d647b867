package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/kickscan/internal/aggregate"
	"github.com/nao1215/kickscan/internal/kickstarter"
	"github.com/nao1215/kickscan/internal/model"
	"github.com/nao1215/kickscan/internal/snapshot"
)

// BackerLister lists a project's backers. *kickstarter.Scraper implements it.
type BackerLister interface {
	Backers(ctx context.Context, ref model.ProjectRef) ([]model.BackerEntry, error)
}

// BackerResolver resolves backer entries into users. *kickstarter.Scraper implements it.
type BackerResolver interface {
	ResolveAll(ctx context.Context, entries []model.BackerEntry) (*kickstarter.ResolveResult, error)
}

// ReportBuilder aggregates users into a report. *aggregate.Aggregator implements it.
type ReportBuilder interface {
	Aggregate(ctx context.Context, target model.ProjectRef, users []model.UserRecord, th aggregate.Thresholds) (*model.SimilarityReport, error)
}

// RunStore persists finished runs. *database.HistoryDB implements it.
type RunStore interface {
	SaveRun(ctx context.Context, run *model.Run) (int64, error)
}

// BackersStep fills run.Backers from the target's backer listing.
type BackersStep struct {
	lister BackerLister
}

// NewBackersStep creates a BackersStep.
func NewBackersStep(lister BackerLister) *BackersStep {
	return &BackersStep{lister: lister}
}

// Name returns the step name.
func (s *BackersStep) Name() string {
	return "backers"
}

// Do executes the step.
func (s *BackersStep) Do(ctx context.Context, run *model.Run) error {
	backers, err := s.lister.Backers(ctx, run.Target)
	if err != nil {
		return err
	}
	run.Backers = backers
	return nil
}

// ResolveStep turns run.Backers into run.Users, counting deleted accounts.
type ResolveStep struct {
	resolver BackerResolver
}

// NewResolveStep creates a ResolveStep.
func NewResolveStep(resolver BackerResolver) *ResolveStep {
	return &ResolveStep{resolver: resolver}
}

// Name returns the step name.
func (s *ResolveStep) Name() string {
	return "resolve"
}

// Do executes the step.
func (s *ResolveStep) Do(ctx context.Context, run *model.Run) error {
	result, err := s.resolver.ResolveAll(ctx, run.Backers)
	if err != nil {
		return err
	}
	run.Users = result.Users
	run.DeletedUsers = len(result.Deleted)
	return nil
}

// SnapshotStep writes run.Users to the snapshot directory.
type SnapshotStep struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// SnapshotStepOption configures a SnapshotStep.
type SnapshotStepOption func(*SnapshotStep)

// WithSnapshotClock replaces time.Now for the snapshot file name.
func WithSnapshotClock(now func() time.Time) SnapshotStepOption {
	return func(s *SnapshotStep) { s.now = now }
}

// WithSnapshotLogger sets a custom logger for the snapshot step.
func WithSnapshotLogger(logger *slog.Logger) SnapshotStepOption {
	return func(s *SnapshotStep) { s.logger = logger }
}

// NewSnapshotStep creates a SnapshotStep writing into dir.
func NewSnapshotStep(dir string, opts ...SnapshotStepOption) *SnapshotStep {
	s := &SnapshotStep{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *SnapshotStep) Name() string {
	return "snapshot"
}

// Do executes the step.
func (s *SnapshotStep) Do(_ context.Context, run *model.Run) error {
	path, err := snapshot.Write(s.dir, run.Target, run.Users, s.now())
	if err != nil {
		return err
	}
	run.SnapshotPath = path
	s.logger.Info("snapshot written", "path", path, "users", len(run.Users))
	return nil
}

// LoadSnapshotStep fills run.Users from an existing snapshot file.
type LoadSnapshotStep struct {
	path string
}

// NewLoadSnapshotStep creates a LoadSnapshotStep reading path.
func NewLoadSnapshotStep(path string) *LoadSnapshotStep {
	return &LoadSnapshotStep{path: path}
}

// Name returns the step name.
func (s *LoadSnapshotStep) Name() string {
	return "load_snapshot"
}

// Do executes the step.
func (s *LoadSnapshotStep) Do(_ context.Context, run *model.Run) error {
	users, err := snapshot.Read(s.path)
	if err != nil {
		return err
	}
	run.Users = users
	run.SnapshotPath = s.path
	return nil
}

// AggregateStep builds run.Report from run.Users.
type AggregateStep struct {
	builder    ReportBuilder
	thresholds aggregate.Thresholds
}

// NewAggregateStep creates an AggregateStep with the given thresholds.
func NewAggregateStep(builder ReportBuilder, th aggregate.Thresholds) *AggregateStep {
	return &AggregateStep{builder: builder, thresholds: th}
}

// Name returns the step name.
func (s *AggregateStep) Name() string {
	return "aggregate"
}

// Do executes the step.
func (s *AggregateStep) Do(ctx context.Context, run *model.Run) error {
	report, err := s.builder.Aggregate(ctx, run.Target, run.Users, s.thresholds)
	if err != nil {
		return err
	}
	run.Report = report
	return nil
}

// PersistStep saves the finished run in the history database. A storage
// failure is logged and does not fail the run: the report is already complete.
type PersistStep struct {
	store  RunStore
	logger *slog.Logger
}

// NewPersistStep creates a PersistStep.
func NewPersistStep(store RunStore, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do executes the step.
func (s *PersistStep) Do(ctx context.Context, run *model.Run) error {
	if run.Report == nil {
		return errors.New("nothing to persist: run has no report")
	}
	id, err := s.store.SaveRun(ctx, run)
	if err != nil {
		s.logger.Warn("failed to save run history", "error", err)
		return nil
	}
	s.logger.Debug("run saved", "id", id)
	return nil
}

// ScrapeSteps returns the standard step sequence for a live scrape.
// store may be nil to skip history.
func ScrapeSteps(lister BackerLister, resolver BackerResolver, snapshotDir string, builder ReportBuilder, th aggregate.Thresholds, store RunStore, logger *slog.Logger) []Step {
	steps := []Step{
		NewBackersStep(lister),
		NewResolveStep(resolver),
		NewSnapshotStep(snapshotDir, WithSnapshotLogger(logger)),
		NewAggregateStep(builder, th),
	}
	if store != nil {
		steps = append(steps, NewPersistStep(store, logger))
	}
	return steps
}

// SnapshotSteps returns the step sequence that aggregates a saved snapshot.
func SnapshotSteps(path string, builder ReportBuilder, th aggregate.Thresholds, store RunStore, logger *slog.Logger) []Step {
	steps := []Step{
		NewLoadSnapshotStep(path),
		NewAggregateStep(builder, th),
	}
	if store != nil {
		steps = append(steps, NewPersistStep(store, logger))
	}
	return steps
}
