package pipeline

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/wiki-search-sync/internal/models"
)

// State of a run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Stage names the step a run failed in.
type Stage string

const (
	StageConfig Stage = "config"
	StageRead   Stage = "read"
	StageWrite  Stage = "write"
)

// Error kinds reported in an Outcome.
const (
	KindConfigurationMissing = "ConfigurationMissing"
	KindSourceUnavailable    = "SourceUnavailable"
	KindIndexWriteFailed     = "IndexWriteFailed"
	KindUnknown              = "Unknown"
)

// Outcome is the single result reported for a run.
type Outcome struct {
	RunID         string    `json:"run_id"`
	State         State     `json:"state"`
	Succeeded     bool      `json:"succeeded"`
	DocumentCount int       `json:"document_count"`
	FailedStage   Stage     `json:"failed_stage,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Err           error     `json:"-"`
}

// Duration is the wall-clock time the run took.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// NewFailedOutcome reports a run that failed before any stage could start,
// typically on configuration.
func NewFailedOutcome(stage Stage, err error) Outcome {
	now := time.Now().UTC()
	o := Outcome{RunID: uuid.NewString(), State: StateIdle, StartedAt: now}
	o.fail(stage, err, now)
	return o
}

func (o *Outcome) fail(stage Stage, err error, now time.Time) {
	o.State = StateFailed
	o.Succeeded = false
	o.DocumentCount = 0
	o.FailedStage = stage
	o.ErrorKind = kindOf(err)
	o.ErrorDetail = err.Error()
	o.Err = err
	o.FinishedAt = now
}

func kindOf(err error) string {
	switch {
	case models.IsConfigurationMissing(err):
		return KindConfigurationMissing
	case models.IsSourceUnavailable(err):
		return KindSourceUnavailable
	case models.IsIndexWriteFailed(err):
		return KindIndexWriteFailed
	default:
		return KindUnknown
	}
}

// LogOutcome writes the outcome as one structured log line.
func LogOutcome(log *slog.Logger, o Outcome) {
	attrs := []any{
		slog.String("run_id", o.RunID),
		slog.String("state", string(o.State)),
		slog.Int("document_count", o.DocumentCount),
		slog.Duration("duration", o.Duration()),
	}
	if o.Succeeded {
		log.Info("sync run succeeded", attrs...)
		return
	}
	attrs = append(attrs,
		slog.String("failed_stage", string(o.FailedStage)),
		slog.String("error_kind", o.ErrorKind),
		slog.String("error_detail", o.ErrorDetail),
	)
	log.Error("sync run failed", attrs...)
}
