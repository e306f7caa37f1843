package sqlscript

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay is the pause between statements. The hosted gateway rate limits
// bursts of RPC calls.
const DefaultDelay = 100 * time.Millisecond

// Outcome of a replayed statement
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Attempt records one executor's failure on a statement
type Attempt struct {
	Executor string
	Err      error
}

// Result is the outcome of a single statement
type Result struct {
	Statement Statement
	Outcome   Outcome
	Executor  string // executor that applied or skipped the statement
	Err       error  // last error seen; nil when applied
	Attempts  []Attempt
}

// ReplayerConfig configures a Replayer
type ReplayerConfig struct {
	// Executors are tried in order for every statement.
	Executors []Executor
	// Delay between statements. Zero means DefaultDelay, negative disables the pause.
	Delay       time.Duration
	StopOnError bool
	Logger      *zap.Logger
}

// Replayer applies a script statement by statement
type Replayer struct {
	executors   []Executor
	delay       time.Duration
	stopOnError bool
	logger      *zap.Logger
}

// NewReplayer creates a Replayer; at least one executor is required.
func NewReplayer(cfg ReplayerConfig) (*Replayer, error) {
	if len(cfg.Executors) == 0 {
		return nil, errors.New("sqlscript: at least one executor is required")
	}
	delay := cfg.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		executors:   cfg.Executors,
		delay:       delay,
		stopOnError: cfg.StopOnError,
		logger:      logger,
	}, nil
}

// Run replays every statement of script. The returned error is non-nil only
// when ctx is cancelled; statement failures are reported in the Report.
func (r *Replayer) Run(ctx context.Context, script *Script) (*Report, error) {
	report := &Report{Script: script.Name, StartedAt: time.Now()}
	log := r.logger.With(zap.String("script", script.Name))
	log.Info("Replaying script", zap.Int("statements", len(script.Statements)))

	defer func() { report.Duration = time.Since(report.StartedAt) }()

	for i, stmt := range script.Statements {
		if i > 0 && r.delay > 0 {
			if err := sleep(ctx, r.delay); err != nil {
				return report, err
			}
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := r.apply(ctx, stmt)
		report.Results = append(report.Results, res)

		fields := []zap.Field{
			zap.Int("n", stmt.Ordinal),
			zap.Int("line", stmt.Line),
			zap.String("kind", stmt.Kind()),
		}
		switch res.Outcome {
		case OutcomeApplied:
			log.Info("Statement applied", append(fields, zap.String("executor", res.Executor))...)
		case OutcomeSkipped:
			log.Warn("Statement skipped, object already exists", append(fields, zap.String("executor", res.Executor))...)
		case OutcomeFailed:
			log.Error("Statement failed", append(fields, zap.String("sql", stmt.Summary()), zap.Error(res.Err))...)
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if r.stopOnError {
				report.Aborted = true
				log.Warn("Stopping on first failure", zap.Int("remaining", len(script.Statements)-i-1))
				return report, nil
			}
		}
	}

	log.Info("Script finished",
		zap.Int("applied", report.Count(OutcomeApplied)),
		zap.Int("skipped", report.Count(OutcomeSkipped)),
		zap.Int("failed", report.Count(OutcomeFailed)),
	)
	return report, nil
}

func (r *Replayer) apply(ctx context.Context, stmt Statement) Result {
	res := Result{Statement: stmt, Outcome: OutcomeFailed}
	for _, ex := range r.executors {
		err := Classify(ex.Exec(ctx, stmt))
		switch {
		case err == nil:
			res.Outcome, res.Executor, res.Err = OutcomeApplied, ex.Name(), nil
			return res
		case errors.Is(err, ErrAlreadyExists):
			res.Outcome, res.Executor, res.Err = OutcomeSkipped, ex.Name(), err
			return res
		}
		res.Attempts = append(res.Attempts, Attempt{Executor: ex.Name(), Err: err})
		res.Err = err
		if ctx.Err() != nil {
			break
		}
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
