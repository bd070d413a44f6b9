package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgresFault is the subset of a driver error worth logging. Both pgx and
// lib/pq surface the same SQLSTATE fields under different names.
type PostgresFault struct {
	SQLState   string
	Constraint string
	Table      string
	Detail     string
}

// PostgresFaultOf finds the first driver error in err's chain.
func PostgresFaultOf(err error) (PostgresFault, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PostgresFault{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PostgresFault{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
		}, true
	}
	return PostgresFault{}, false
}

// maxChainDepth bounds the unwrap walk for self-referencing error types.
const maxChainDepth = 16

// LogFields flattens err into structured log fields: the typed code, every
// link of the unwrap chain and, for database failures, the SQLSTATE details.
func LogFields(err error) map[string]any {
	fields := map[string]any{}
	if err == nil {
		return fields
	}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.Code())
		if reason := ReasonOf(typed); reason != "" {
			fields["reason"] = reason
		}
	}

	var chain []string
	for e, depth := err, 0; e != nil && depth < maxChainDepth; e, depth = errors.Unwrap(e), depth+1 {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain

	if fault, ok := PostgresFaultOf(err); ok {
		fields["pg_code"] = fault.SQLState
		if fault.Constraint != "" {
			fields["pg_constraint"] = fault.Constraint
		}
		if fault.Table != "" {
			fields["pg_table"] = fault.Table
		}
		if fault.Detail != "" {
			fields["pg_detail"] = fault.Detail
		}
	}
	return fields
}
