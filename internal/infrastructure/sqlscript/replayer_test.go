package sqlscript

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeExecutor returns scripted errors keyed by statement ordinal
type fakeExecutor struct {
	name  string
	errs  map[int]error
	calls []int
}

func (f *fakeExecutor) Name() string { return f.name }

func (f *fakeExecutor) Exec(_ context.Context, stmt Statement) error {
	f.calls = append(f.calls, stmt.Ordinal)
	return f.errs[stmt.Ordinal]
}

func threeStatements() *Script {
	return ParseScript("test.sql", "CREATE TABLE a (id int);\nCREATE TABLE b (id int);\nCREATE TABLE c (id int);")
}

func newTestReplayer(t *testing.T, cfg ReplayerConfig) *Replayer {
	t.Helper()
	if cfg.Delay == 0 {
		cfg.Delay = -1
	}
	r, err := NewReplayer(cfg)
	require.NoError(t, err)
	return r
}

func TestNewReplayer(t *testing.T) {
	_, err := NewReplayer(ReplayerConfig{})
	require.Error(t, err)

	r, err := NewReplayer(ReplayerConfig{Executors: []Executor{&fakeExecutor{name: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, DefaultDelay, r.delay)
}

func TestReplayer_AllApplied(t *testing.T) {
	direct := &fakeExecutor{name: "direct"}
	rpc := &fakeExecutor{name: "rpc"}
	r := newTestReplayer(t, ReplayerConfig{Executors: []Executor{direct, rpc}})

	report, err := r.Run(context.Background(), threeStatements())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Count(OutcomeApplied))
	assert.False(t, report.Failed())
	assert.Equal(t, []int{1, 2, 3}, direct.calls)
	assert.Empty(t, rpc.calls, "fallback not needed")
	for _, res := range report.Results {
		assert.Equal(t, "direct", res.Executor)
	}
}

func TestReplayer_AlreadyExistsIsSkipped(t *testing.T) {
	direct := &fakeExecutor{name: "direct", errs: map[int]error{
		2: &pq.Error{Code: "42P07", Message: `relation "b" already exists`},
	}}
	rpc := &fakeExecutor{name: "rpc"}
	r := newTestReplayer(t, ReplayerConfig{Executors: []Executor{direct, rpc}})

	report, err := r.Run(context.Background(), threeStatements())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Count(OutcomeApplied))
	assert.Equal(t, 1, report.Count(OutcomeSkipped))
	assert.Equal(t, OutcomeSkipped, report.Results[1].Outcome)
	assert.Empty(t, rpc.calls, "a skip stops the executor chain")
	assert.False(t, report.Failed())
}

func TestReplayer_FallsBackToNextExecutor(t *testing.T) {
	direct := &fakeExecutor{name: "direct", errs: map[int]error{
		1: ErrUnavailable,
		2: ErrUnavailable,
		3: ErrUnavailable,
	}}
	rpc := &fakeExecutor{name: "rpc", errs: map[int]error{
		3: errors.New(`ERROR: policy "p" for table "c" already exists`),
	}}
	r := newTestReplayer(t, ReplayerConfig{Executors: []Executor{direct, rpc}})

	report, err := r.Run(context.Background(), threeStatements())
	require.NoError(t, err)

	assert.Equal(t, "rpc", report.Results[0].Executor)
	assert.Equal(t, OutcomeApplied, report.Results[0].Outcome)
	require.Len(t, report.Results[0].Attempts, 1)
	assert.Equal(t, "direct", report.Results[0].Attempts[0].Executor)
	assert.Equal(t, OutcomeSkipped, report.Results[2].Outcome)
}

func TestReplayer_FailureLogsAndContinues(t *testing.T) {
	boom := errors.New("deadlock detected")
	direct := &fakeExecutor{name: "direct", errs: map[int]error{2: boom}}
	rpc := &fakeExecutor{name: "rpc", errs: map[int]error{2: ErrUnavailable}}

	core, logs := observer.New(zapcore.InfoLevel)
	r := newTestReplayer(t, ReplayerConfig{Executors: []Executor{direct, rpc}, Logger: zap.New(core)})

	report, err := r.Run(context.Background(), threeStatements())
	require.NoError(t, err)

	assert.True(t, report.Failed())
	assert.Equal(t, 2, report.Count(OutcomeApplied))
	failed := report.FailedResults()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Statement.Ordinal)
	assert.ErrorIs(t, failed[0].Err, ErrUnavailable, "last error wins")
	assert.Len(t, failed[0].Attempts, 2)
	assert.Equal(t, []int{1, 2, 3}, direct.calls)

	assert.Equal(t, 1, logs.FilterMessage("Statement failed").Len())
	assert.Equal(t, 2, logs.FilterMessage("Statement applied").Len())
	assert.Contains(t, report.Summary(), "2 applied, 0 skipped, 1 failed")
}

func TestReplayer_StopOnError(t *testing.T) {
	direct := &fakeExecutor{name: "direct", errs: map[int]error{1: errors.New("boom")}}
	r := newTestReplayer(t, ReplayerConfig{Executors: []Executor{direct}, StopOnError: true})

	report, err := r.Run(context.Background(), threeStatements())
	require.NoError(t, err)

	assert.True(t, report.Aborted)
	assert.Len(t, report.Results, 1)
	assert.Equal(t, []int{1}, direct.calls)
	assert.True(t, strings.HasSuffix(report.Summary(), "(aborted)"))
}

func TestReplayer_DelayHonoursContext(t *testing.T) {
	direct := &fakeExecutor{name: "direct"}
	r := newTestReplayer(t, ReplayerConfig{Executors: []Executor{direct}, Delay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report, err := r.Run(ctx, threeStatements())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, report.Results, 1, "first statement runs before any delay")
}

func TestReplayer_DelaysBetweenStatements(t *testing.T) {
	direct := &fakeExecutor{name: "direct"}
	r := newTestReplayer(t, ReplayerConfig{Executors: []Executor{direct}, Delay: 10 * time.Millisecond})

	start := time.Now()
	report, err := r.Run(context.Background(), threeStatements())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 3, report.Count(OutcomeApplied))
}

func TestManualInstructions(t *testing.T) {
	t.Run("empty when nothing failed", func(t *testing.T) {
		ok := &Report{Script: "a.sql", Results: []Result{{Outcome: OutcomeApplied}}}
		assert.Empty(t, ManualInstructions([]*Report{ok}, ""))
	})

	t.Run("lists failed statements in order", func(t *testing.T) {
		stmts := Split("CREATE TABLE a (id int);\nCREATE POLICY p ON a USING (true);\nCREATE TABLE b (id int);")
		report := &Report{Script: "002_rls.sql", Results: []Result{
			{Statement: stmts[0], Outcome: OutcomeApplied},
			{Statement: stmts[1], Outcome: OutcomeFailed, Err: errors.New("permission denied\nfor table a")},
			{Statement: stmts[2], Outcome: OutcomeFailed, Err: ErrUnavailable},
		}}

		out := ManualInstructions([]*Report{report}, "https://dashboard.example/project/sql")

		assert.Contains(t, out, "2 statement(s) from 002_rls.sql")
		assert.Contains(t, out, "https://dashboard.example/project/sql")
		assert.Contains(t, out, "-- #2 (line 2) CREATE POLICY: permission denied for table a")
		assert.Contains(t, out, "CREATE POLICY p ON a USING (true);\n")
		assert.NotContains(t, out, "CREATE TABLE a (id int);")
		assert.Less(t, strings.Index(out, "#2"), strings.Index(out, "#3"))
	})

	t.Run("generic editor hint without dashboard url", func(t *testing.T) {
		report := &Report{Script: "x.sql", Results: []Result{{Statement: Statement{Ordinal: 1, Line: 1, Text: "SELECT 1"}, Outcome: OutcomeFailed}}}
		assert.Contains(t, ManualInstructions([]*Report{report}, ""), "SQL editor of your database dashboard")
	})
}
