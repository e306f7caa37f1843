package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

var (
	upTemplate = template.Must(template.New("up").Parse(`-- {{.Name}}
-- Created: {{.Created}}
{{- if .Description}}
-- {{.Description}}
{{- end}}
--
-- New tables must enable row level security and declare their policies here:
--   ALTER TABLE <table> ENABLE ROW LEVEL SECURITY;
--   CREATE POLICY "<name>" ON <table> FOR SELECT USING (auth.uid() = user_id);

`))

	downTemplate = template.Must(template.New("down").Parse(`-- Rollback of {{.Name}}
-- Created: {{.Created}}

`))
)

// MigrationFile is an up/down migration pair
type MigrationFile struct {
	Version     string // YYYYMMDDHHMMSS
	Name        string
	Description string
	Created     string
	UpPath      string
	DownPath    string
}

// VersionNumber returns Version as a number, or 0 when it is not numeric
func (f MigrationFile) VersionNumber() uint64 {
	n, _ := strconv.ParseUint(f.Version, 10, 64)
	return n
}

// CreateMigration writes a new timestamped migration pair into dir
func CreateMigration(dir, name, description string) (*MigrationFile, error) {
	return createAt(dir, name, description, time.Now().UTC())
}

func createAt(dir, name, description string, now time.Time) (*MigrationFile, error) {
	slug := sanitizeName(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	version := now.Format("20060102150405")
	base := filepath.Join(dir, version+"_"+slug)
	mf := &MigrationFile{
		Version:     version,
		Name:        name,
		Description: description,
		Created:     now.Format(time.RFC3339),
		UpPath:      base + ".up.sql",
		DownPath:    base + ".down.sql",
	}

	if err := writeTemplate(mf.UpPath, upTemplate, mf); err != nil {
		return nil, err
	}
	if err := writeTemplate(mf.DownPath, downTemplate, mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, err
	}
	return mf, nil
}

func writeTemplate(path string, tmpl *template.Template, mf *MigrationFile) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := tmpl.Execute(f, mf); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return nil
}

// sanitizeName lowercases name and keeps [a-z0-9], collapsing separators into single underscores.
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			pendingSep = true
		}
	}
	return b.String()
}

// ListMigrations returns the migration pairs in dir ordered by version.
// A missing directory yields an empty list.
func ListMigrations(dir string) ([]MigrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var out []MigrationFile
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".up.sql")
		if e.IsDir() || !ok {
			continue
		}
		version, name, _ := strings.Cut(base, "_")
		mf := MigrationFile{
			Version: version,
			Name:    name,
			UpPath:  filepath.Join(dir, e.Name()),
		}
		if down := filepath.Join(dir, base+".down.sql"); fileExists(down) {
			mf.DownPath = down
		}
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber() < out[j].VersionNumber() })
	return out, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
