// Package sqlscript splits PostgreSQL scripts into statements and replays them
// one at a time against a chain of executors.
package sqlscript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Statement is one top-level SQL statement taken from a script
type Statement struct {
	Ordinal int    // 1-based position in the script
	Line    int    // line of the first significant character
	Text    string // statement text without the terminating semicolon
}

// Script is a named, already split SQL file
type Script struct {
	Name       string
	Statements []Statement
}

// LoadScript reads and splits a SQL file
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(filepath.Base(path), string(data)), nil
}

// ParseScript splits sql into a Script named name
func ParseScript(name, sql string) *Script {
	return &Script{Name: name, Statements: Split(sql)}
}

// Kind returns the statement's leading keywords, e.g. "CREATE TABLE" or "INSERT".
// Modifiers such as OR REPLACE, UNIQUE and IF NOT EXISTS are skipped.
func (s Statement) Kind() string {
	words := strings.FieldsFunc(strings.ToUpper(s.Text), func(r rune) bool {
		return unicode.IsSpace(r) || r == '(' || r == ';'
	})
	if len(words) == 0 {
		return ""
	}
	switch words[0] {
	case "CREATE", "ALTER", "DROP", "COMMENT":
	default:
		return words[0]
	}
	for _, w := range words[1:] {
		switch w {
		case "OR", "REPLACE", "UNIQUE", "TEMP", "TEMPORARY", "UNLOGGED", "IF", "NOT", "EXISTS", "ON":
			continue
		}
		return words[0] + " " + w
	}
	return words[0]
}

// Summary returns the first line of the statement, truncated for log output
func (s Statement) Summary() string {
	line, _, _ := strings.Cut(s.Text, "\n")
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return line
}

// Split breaks sql into top-level statements on ';'. Semicolons inside string
// literals, quoted identifiers, comments and dollar-quoted bodies do not split.
// Statements that hold only whitespace and comments are dropped.
func Split(sql string) []Statement {
	var (
		out   []Statement
		line  = 1
		start = -1 // byte offset of the current statement's first significant char
		sLine int
		depth int // block comment nesting
		i     int
	)

	flush := func(end int) {
		if start >= 0 {
			text := strings.TrimRightFunc(sql[start:end], unicode.IsSpace)
			out = append(out, Statement{Ordinal: len(out) + 1, Line: sLine, Text: text})
		}
		start = -1
	}
	mark := func() {
		if start < 0 {
			start, sLine = i, line
		}
	}

	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\n':
			line++
			i++

		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			depth = 1
			i += 2
			for i < len(sql) && depth > 0 {
				switch {
				case sql[i] == '\n':
					line++
					i++
				case sql[i] == '/' && i+1 < len(sql) && sql[i+1] == '*':
					depth++
					i += 2
				case sql[i] == '*' && i+1 < len(sql) && sql[i+1] == '/':
					depth--
					i += 2
				default:
					i++
				}
			}

		case c == '\'':
			mark()
			escapes := i > 0 && (sql[i-1] == 'E' || sql[i-1] == 'e') && (i < 2 || !isIdentChar(sql[i-2]))
			i = skipQuoted(sql, i, '\'', escapes, &line)

		case c == '"':
			mark()
			i = skipQuoted(sql, i, '"', false, &line)

		case c == '$':
			mark()
			if tag, ok := dollarTag(sql, i); ok {
				body := i + len(tag)
				end := strings.Index(sql[body:], tag)
				if end < 0 {
					line += strings.Count(sql[i:], "\n")
					i = len(sql)
					break
				}
				stop := body + end + len(tag)
				line += strings.Count(sql[i:stop], "\n")
				i = stop
				break
			}
			i++

		case c == ';':
			flush(i)
			i++

		case unicode.IsSpace(rune(c)):
			i++

		default:
			mark()
			i++
		}
	}
	flush(len(sql))
	return out
}

// skipQuoted advances past a quoted token starting at sql[i]. A doubled quote
// is an escaped quote; with backslash escapes enabled \x is skipped as a pair.
func skipQuoted(sql string, i int, q byte, backslash bool, line *int) int {
	i++
	for i < len(sql) {
		switch c := sql[i]; {
		case c == '\n':
			*line++
			i++
		case backslash && c == '\\' && i+1 < len(sql):
			if sql[i+1] == '\n' {
				*line++
			}
			i += 2
		case c == q:
			if i+1 < len(sql) && sql[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		default:
			i++
		}
	}
	return i
}

// dollarTag reports whether sql[i:] opens a dollar quote ($$ or $tag$) and returns the tag.
// Positional parameters such as $1 are not tags.
func dollarTag(sql string, i int) (string, bool) {
	if i > 0 && isIdentChar(sql[i-1]) {
		return "", false
	}
	j := i + 1
	for j < len(sql) && sql[j] != '$' {
		c := sql[j]
		if !(c == '_' || unicode.IsLetter(rune(c)) || (j > i+1 && unicode.IsDigit(rune(c)))) {
			return "", false
		}
		j++
	}
	if j >= len(sql) {
		return "", false
	}
	return sql[i : j+1], true
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}
