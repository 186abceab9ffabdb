package executor

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/models"
)

// disallowedSQLKeyword catches any generated SQL that isn't a pure read,
// enforcing spec.md §1's "Modifying tenant state" Non-goal at the one
// point generated SQL text actually reaches a database connection.
// spec.md's C1 operations (validate_code/url/http_method/data_op) don't
// name a SQL-specific check, so this lives in the executor rather than
// pkg/safety.
var disallowedSQLKeyword = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|merge|call|vacuum)\b`)

func validateReadOnlySQL(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return errors.New("generated SQL was empty")
	}
	body := strings.TrimSuffix(trimmed, ";")
	if strings.Contains(body, ";") {
		return errors.New("generated SQL must be a single statement")
	}
	lower := strings.ToLower(body)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return errors.New("generated SQL must be a read-only SELECT (or WITH ... SELECT) statement")
	}
	if disallowedSQLKeyword.MatchString(body) {
		return errors.New("generated SQL contains a disallowed non-read-only keyword")
	}
	return nil
}

// SQLRunner executes validated, read-only SQL against the relational
// mirror (spec.md §4.5 step 4 "SQL: run against the relational mirror").
// The mirror-sync job itself is out of scope (spec.md §1 Non-goals); this
// runner assumes the mirror tables the Catalog names already exist.
type SQLRunner struct {
	db           *sql.DB
	rowLimit     int
	queryTimeout time.Duration
}

// NewSQLRunner builds a SQLRunner. rowLimit caps how many rows are kept
// from a result set (0 = unbounded); queryTimeout bounds each query's
// wall-clock time independent of the caller's context.
func NewSQLRunner(db *sql.DB, rowLimit int, queryTimeout time.Duration) *SQLRunner {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &SQLRunner{db: db, rowLimit: rowLimit, queryTimeout: queryTimeout}
}

// Run validates then executes a single generated SQL statement, returning
// rows as plain maps (the same shape sandbox.Frame uses for API results,
// so both tool kinds feed buildSample identically).
func (r *SQLRunner) Run(ctx context.Context, query string) ([]map[string]any, error) {
	if err := validateReadOnlySQL(query); err != nil {
		return nil, models.WrapError(models.ErrCodeUnsafeCode, err.Error(), nil)
	}

	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(qctx, query)
	if err != nil {
		return nil, models.WrapError(models.ErrCodeSQLError, "sql query failed", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, models.WrapError(models.ErrCodeSQLError, "reading sql result columns", err)
	}

	var out []map[string]any
	for rows.Next() {
		if r.rowLimit > 0 && len(out) >= r.rowLimit {
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, models.WrapError(models.ErrCodeSQLError, "scanning sql row", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeSQLValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, models.WrapError(models.ErrCodeSQLError, "iterating sql rows", err)
	}
	return out, nil
}

func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
