package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// pgDiag is the subset of Postgres diagnostics worth logging. pgx and lib/pq
// report the same fields under different names.
type pgDiag struct {
	code, constraint, table, column, detail, message string
}

func pgDiagnostics(err error) (pgDiag, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgDiag{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgDiag{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgDiag{}, false
}

// PGCode returns the SQLSTATE carried by a pgx or lib/pq error, or "".
func PGCode(err error) string {
	diag, _ := pgDiagnostics(err)
	return diag.code
}

// LogFields flattens err into structured log fields: its code, the unwrap
// chain and any Postgres diagnostics. Empty values are left out.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error_code": string(CodeInternal)}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.Code())
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain

	if diag, ok := pgDiagnostics(err); ok {
		for key, value := range map[string]string{
			"pg_code":       diag.code,
			"pg_constraint": diag.constraint,
			"pg_table":      diag.table,
			"pg_column":     diag.column,
			"pg_detail":     diag.detail,
			"pg_message":    diag.message,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}
