package verify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Prober answers existence questions about a schema
type Prober interface {
	Name() string
	TableExists(ctx context.Context, schema, table string) (bool, error)
	// MissingColumns returns the subset of columns that table lacks
	MissingColumns(ctx context.Context, schema, table string, columns []string) ([]string, error)
	FunctionExists(ctx context.Context, schema, name string) (bool, error)
}

// CheckKind identifies what a Check looked at
type CheckKind string

const (
	CheckTable    CheckKind = "table"
	CheckColumn   CheckKind = "column"
	CheckFunction CheckKind = "function"
)

// Check is one pass/fail line of a verification
type Check struct {
	Kind   CheckKind
	Name   string
	Passed bool
}

func (c Check) String() string {
	mark := "ok  "
	if !c.Passed {
		mark = "MISSING"
	}
	return fmt.Sprintf("[%s] %s %s", mark, c.Kind, c.Name)
}

// Report is the outcome of Verify
type Report struct {
	Prober string
	Checks []Check
}

// OK reports whether every check passed
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Missing returns the failed checks
func (r *Report) Missing() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// String renders one line per check followed by a summary
func (r *Report) String() string {
	var b strings.Builder
	for _, c := range r.Checks {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d checks, %d missing (via %s)\n", len(r.Checks), len(r.Missing()), r.Prober)
	return b.String()
}

// Verifier runs a manifest against a Prober
type Verifier struct {
	prober Prober
	logger *zap.Logger
}

// NewVerifier creates a Verifier
func NewVerifier(p Prober, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{prober: p, logger: logger}
}

// Verify checks every table, column and function of m. Columns of a missing
// table are reported missing without probing. Prober errors abort the run.
func (v *Verifier) Verify(ctx context.Context, m *Manifest) (*Report, error) {
	report := &Report{Prober: v.prober.Name()}
	schema := m.Schema
	if schema == "" {
		schema = "public"
	}

	for _, t := range m.Tables {
		exists, err := v.prober.TableExists(ctx, schema, t.Name)
		if err != nil {
			return report, fmt.Errorf("probe table %s: %w", t.Name, err)
		}
		report.Checks = append(report.Checks, Check{Kind: CheckTable, Name: t.Name, Passed: exists})

		missing := t.Columns
		if exists && len(t.Columns) > 0 {
			missing, err = v.prober.MissingColumns(ctx, schema, t.Name, t.Columns)
			if err != nil {
				return report, fmt.Errorf("probe columns of %s: %w", t.Name, err)
			}
		}
		absent := make(map[string]bool, len(missing))
		for _, c := range missing {
			absent[c] = true
		}
		for _, c := range t.Columns {
			report.Checks = append(report.Checks, Check{Kind: CheckColumn, Name: t.Name + "." + c, Passed: !absent[c]})
		}
	}

	for _, fn := range m.Functions {
		exists, err := v.prober.FunctionExists(ctx, schema, fn)
		if err != nil {
			return report, fmt.Errorf("probe function %s: %w", fn, err)
		}
		report.Checks = append(report.Checks, Check{Kind: CheckFunction, Name: fn, Passed: exists})
	}

	for _, c := range report.Missing() {
		v.logger.Warn("Schema object missing", zap.String("kind", string(c.Kind)), zap.String("name", c.Name))
	}
	v.logger.Info("Schema verification finished",
		zap.String("prober", report.Prober),
		zap.Int("checks", len(report.Checks)),
		zap.Int("missing", len(report.Missing())),
	)
	return report, nil
}
