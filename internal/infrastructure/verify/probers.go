package verify

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/hostedapi"
)

// SQLProber reads information_schema over a direct connection
type SQLProber struct {
	db *sql.DB
}

// NewSQLProber creates a prober on db
func NewSQLProber(db *sql.DB) *SQLProber {
	return &SQLProber{db: db}
}

func (p *SQLProber) Name() string { return "sql" }

func (p *SQLProber) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		schema, table).Scan(&ok)
	return ok, err
}

func (p *SQLProber) MissingColumns(ctx context.Context, schema, table string, columns []string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`,
		schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, c := range columns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

func (p *SQLProber) FunctionExists(ctx context.Context, schema, name string) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.routines WHERE routine_schema = $1 AND routine_name = $2)`,
		schema, name).Scan(&ok)
	return ok, err
}

// RESTProber probes through the hosted gateway with select=...&limit=0 queries.
// It only sees objects exposed to the API, which is what the application uses.
type RESTProber struct {
	client    *hostedapi.Client
	functions []string // cached OpenAPI listing
}

// NewRESTProber creates a prober on client
func NewRESTProber(client *hostedapi.Client) *RESTProber {
	return &RESTProber{client: client}
}

func (p *RESTProber) Name() string { return "rest" }

func (p *RESTProber) TableExists(ctx context.Context, _, table string) (bool, error) {
	err := p.client.Probe(ctx, table, nil)
	if err == nil {
		return true, nil
	}
	if isMissingRelation(err) {
		return false, nil
	}
	return false, err
}

func (p *RESTProber) MissingColumns(ctx context.Context, _, table string, columns []string) ([]string, error) {
	err := p.client.Probe(ctx, table, columns)
	if err == nil {
		return nil, nil
	}
	if !isMissingColumn(err) {
		return nil, err
	}

	// The gateway only names the first bad column; probe one by one.
	var missing []string
	for _, c := range columns {
		err := p.client.Probe(ctx, table, []string{c})
		switch {
		case err == nil:
		case isMissingColumn(err):
			missing = append(missing, c)
		default:
			return nil, err
		}
	}
	return missing, nil
}

func (p *RESTProber) FunctionExists(ctx context.Context, _, name string) (bool, error) {
	if p.functions == nil {
		fns, err := p.client.RPCFunctions(ctx)
		if err != nil {
			return false, err
		}
		if fns == nil {
			fns = []string{}
		}
		p.functions = fns
	}
	return slices.Contains(p.functions, name), nil
}

func isMissingRelation(err error) bool {
	var apiErr *hostedapi.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "42P01" || apiErr.Code == "PGRST205" ||
		(apiErr.Status == http.StatusNotFound && apiErr.Code == "")
}

func isMissingColumn(err error) bool {
	var apiErr *hostedapi.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "42703" || (strings.HasPrefix(apiErr.Code, "PGRST") && strings.Contains(apiErr.Message, "column"))
}
