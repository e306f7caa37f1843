package verify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/hostedapi"
)

const sampleManifest = `
tables:
  - name: debts
    columns: [id, user_id, amount, status]
  - name: webhook_events
    columns: [id, event_key]
functions:
  - exec_sql
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	assert.Equal(t, "public", m.Schema)
	require.Len(t, m.Tables, 2)
	assert.Equal(t, []string{"id", "user_id", "amount", "status"}, m.Tables[0].Columns)
	assert.Equal(t, []string{"exec_sql"}, m.Functions)
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"unknown field", "tables:\n  - name: a\n    colums: [x]\n"},
		{"missing name", "tables:\n  - columns: [x]\n"},
		{"duplicate table", "tables:\n  - name: a\n  - name: a\n"},
		{"empty function", "functions: ['']\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Tables, 2)
}

func TestVerifier_SQLProber(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tableQ := regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM information_schema.tables`)
	colQ := regexp.QuoteMeta(`SELECT column_name FROM information_schema.columns`)
	fnQ := regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM information_schema.routines`)

	mock.ExpectQuery(tableQ).WithArgs("public", "debts").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(colQ).WithArgs("public", "debts").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id").AddRow("user_id").AddRow("amount"))
	mock.ExpectQuery(tableQ).WithArgs("public", "webhook_events").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(fnQ).WithArgs("public", "exec_sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	report, err := NewVerifier(NewSQLProber(db), nil).Verify(context.Background(), m)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.False(t, report.OK())
	var missing []string
	for _, c := range report.Missing() {
		missing = append(missing, string(c.Kind)+":"+c.Name)
	}
	assert.Equal(t, []string{
		"column:debts.status",
		"table:webhook_events",
		"column:webhook_events.id",
		"column:webhook_events.event_key",
	}, missing)
	assert.Contains(t, report.String(), "9 checks, 4 missing (via sql)")
}

func TestVerifier_RESTProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		sel := r.URL.Query().Get("select")
		switch {
		case r.URL.Path == "/rest/v1/":
			_ = json.NewEncoder(w).Encode(map[string]any{"paths": map[string]any{
				"/":             map[string]any{},
				"/debts":        map[string]any{},
				"/rpc/exec_sql": map[string]any{},
				"/rpc/other_fn": map[string]any{},
			}})
		case r.URL.Path == "/rest/v1/webhook_events":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "PGRST205", "message": "Could not find the table 'public.webhook_events' in the schema cache"})
		case r.URL.Path == "/rest/v1/debts" && strings.Contains(sel, "status"):
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "42703", "message": "column debts.status does not exist"})
		case r.URL.Path == "/rest/v1/debts":
			_, _ = w.Write([]byte("[]"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client, err := hostedapi.New(hostedapi.Config{BaseURL: srv.URL, APIKey: "anon"})
	require.NoError(t, err)

	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	report, err := NewVerifier(NewRESTProber(client), nil).Verify(context.Background(), m)
	require.NoError(t, err)

	assert.False(t, report.OK())
	var missing []string
	for _, c := range report.Missing() {
		missing = append(missing, c.Name)
	}
	assert.Equal(t, []string{"debts.status", "webhook_events", "webhook_events.id", "webhook_events.event_key"}, missing)
	assert.Equal(t, "rest", report.Prober)
}

func TestVerifier_ProberErrorAborts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("information_schema.tables").WillReturnError(assert.AnError)

	m := &Manifest{Tables: []TableManifest{{Name: "debts"}}}
	_, err = NewVerifier(NewSQLProber(db), nil).Verify(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe table debts")
}

func TestReport_OK(t *testing.T) {
	r := &Report{Checks: []Check{{Kind: CheckTable, Name: "a", Passed: true}}}
	assert.True(t, r.OK())
	assert.Equal(t, "[ok  ] table a", r.Checks[0].String())
}
