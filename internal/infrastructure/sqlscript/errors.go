package sqlscript

import (
	"database/sql/driver"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// Sentinel categories returned by Classify. Check with errors.Is.
var (
	ErrAlreadyExists = errors.New("sqlscript: object already exists")
	ErrUndefined     = errors.New("sqlscript: object does not exist")
	ErrPermission    = errors.New("sqlscript: permission denied")
	ErrSyntax        = errors.New("sqlscript: syntax error")
	ErrConnection    = errors.New("sqlscript: connection failure")

	// ErrUnavailable means the executor cannot run statements at all
	// (no connection configured, RPC function not installed). The replayer
	// moves on to the next executor.
	ErrUnavailable = errors.New("sqlscript: executor unavailable")
)

// SQLError attaches a category and the SQLSTATE code to a driver error
type SQLError struct {
	Category error
	Code     string
	Cause    error
}

func (e *SQLError) Error() string {
	return e.Cause.Error()
}

func (e *SQLError) Is(target error) bool {
	return target == e.Category
}

func (e *SQLError) Unwrap() error {
	return e.Cause
}

var categoryByCode = map[string]error{
	"42P07": ErrAlreadyExists, // duplicate_table
	"42701": ErrAlreadyExists, // duplicate_column
	"42710": ErrAlreadyExists, // duplicate_object
	"42P06": ErrAlreadyExists, // duplicate_schema
	"42723": ErrAlreadyExists, // duplicate_function
	"42P04": ErrAlreadyExists, // duplicate_database
	"42712": ErrAlreadyExists, // duplicate_alias
	"42P01": ErrUndefined,     // undefined_table
	"42703": ErrUndefined,     // undefined_column
	"42883": ErrUndefined,     // undefined_function
	"42704": ErrUndefined,     // undefined_object
	"42501": ErrPermission,    // insufficient_privilege
	"42601": ErrSyntax,        // syntax_error
}

var sqlStatePattern = regexp.MustCompile(`\(SQLSTATE ([0-9A-Z]{5})\)`)

// Classify wraps err in a *SQLError when its category can be determined from
// the SQLSTATE code or, failing that, from the message text. Unknown errors and
// errors that already carry a category are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var se *SQLError
	if errors.As(err, &se) || errors.Is(err, ErrUnavailable) {
		return err
	}

	code := SQLState(err)
	if cat, ok := categoryByCode[code]; ok {
		return &SQLError{Category: cat, Code: code, Cause: err}
	}
	if strings.HasPrefix(code, "08") || isConnectionError(err) {
		return &SQLError{Category: ErrConnection, Code: code, Cause: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already exists"):
		return &SQLError{Category: ErrAlreadyExists, Code: code, Cause: err}
	case strings.Contains(msg, "permission denied"):
		return &SQLError{Category: ErrPermission, Code: code, Cause: err}
	case strings.Contains(msg, "syntax error"):
		return &SQLError{Category: ErrSyntax, Code: code, Cause: err}
	case strings.Contains(msg, "does not exist"):
		return &SQLError{Category: ErrUndefined, Code: code, Cause: err}
	}
	return err
}

// SQLState extracts a PostgreSQL SQLSTATE code from err, or returns "".
// It understands *pq.Error, drivers exposing SQLState() (pgx, the hosted REST
// client) and messages carrying "(SQLSTATE XXXXX)".
func SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var stater interface{ SQLState() string }
	if errors.As(err, &stater) {
		return stater.SQLState()
	}
	if m := sqlStatePattern.FindStringSubmatch(err.Error()); m != nil {
		return m[1]
	}
	return ""
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
