package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/wiki-search-sync/internal/logger"
	"github.com/DeafMist/wiki-search-sync/internal/models"
)

// Reader fetches the raw pages of the configured container.
type Reader interface {
	FetchChildPages(ctx context.Context) ([]models.RawPage, error)
}

// Transformer maps raw pages to search documents. It cannot fail.
type Transformer interface {
	TransformAll(pages []models.RawPage) []models.SearchDocument
}

// Writer upserts a batch of documents into the index.
type Writer interface {
	UploadDocuments(ctx context.Context, docs []models.SearchDocument) error
}

// Publisher receives every finished outcome. Publishing errors never change the outcome.
type Publisher interface {
	PublishOutcome(ctx context.Context, o Outcome) error
}

// Runner executes Reader -> Transformer -> Writer once per Run.
// It holds no state between runs; concurrent Runs are independent.
type Runner struct {
	Reader      Reader
	Transformer Transformer
	Writer      Writer
	Publisher   Publisher
	Logger      *slog.Logger
	Now         func() time.Time
}

// run tracks the state machine of a single invocation.
type run struct {
	outcome Outcome
	log     *slog.Logger
	now     func() time.Time
}

func (r *run) transition(to State) {
	r.log.Debug("run state", slog.String("from", string(r.outcome.State)), slog.String("to", string(to)))
	r.outcome.State = to
}

func (r *run) fail(stage Stage, err error) Outcome {
	r.log.Debug("run state", slog.String("from", string(r.outcome.State)), slog.String("to", string(StateFailed)))
	r.outcome.fail(stage, err, r.now())
	return r.outcome
}

func (r *run) succeed(count int) Outcome {
	r.transition(StateSucceeded)
	r.outcome.Succeeded = true
	r.outcome.DocumentCount = count
	r.outcome.FinishedAt = r.now()
	return r.outcome
}

// Run performs one sync and reports its outcome. Any stage failure ends the run
// without attempting the remaining stages. An empty read succeeds without a write.
func (p *Runner) Run(ctx context.Context) Outcome {
	log := p.Logger
	if log == nil {
		log = logger.Discard()
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	runID := uuid.NewString()
	r := &run{
		outcome: Outcome{RunID: runID, State: StateIdle, StartedAt: now()},
		log:     log.With(slog.String("run_id", runID)),
		now:     now,
	}

	outcome := p.execute(ctx, r)
	p.report(ctx, log, outcome)
	return outcome
}

func (p *Runner) execute(ctx context.Context, r *run) Outcome {
	r.transition(StateRunning)

	pages, err := p.Reader.FetchChildPages(ctx)
	if err != nil {
		return r.fail(StageRead, classify(err, models.ErrSourceUnavailable))
	}
	r.log.Info("fetched pages", slog.Int("count", len(pages)))

	docs := p.Transformer.TransformAll(pages)
	if len(docs) == 0 {
		r.log.Info("no documents to index")
		return r.succeed(0)
	}

	if err := p.Writer.UploadDocuments(ctx, docs); err != nil {
		r.log.Warn("batch rejected", slog.Int("count", len(docs)))
		return r.fail(StageWrite, classify(err, models.ErrIndexWriteFailed))
	}

	return r.succeed(len(docs))
}

// classify makes sure a stage error carries the failure kind of its stage.
func classify(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func (p *Runner) report(ctx context.Context, log *slog.Logger, o Outcome) {
	LogOutcome(log, o)
	if p.Publisher == nil {
		return
	}
	// The run context may already be expired; the event should still go out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.Publisher.PublishOutcome(pubCtx, o); err != nil {
		log.Warn("publish run outcome", slog.String("run_id", o.RunID), slog.Any("err", err))
	}
}
