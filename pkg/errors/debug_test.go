package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestLogFieldsFromPgxError(t *testing.T) {
	driver := &pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_order_id_key", TableName: "ledger_entries"}
	err := Wrap(CodeConflict, fmt.Errorf("insert ledger entry: %w", driver), "ledger entry exists").WithReason("duplicate_entry")

	fields := LogFields(err)
	if fields["error_code"] != string(CodeConflict) {
		t.Fatalf("error_code = %v", fields["error_code"])
	}
	if fields["reason"] != "duplicate_entry" {
		t.Fatalf("reason = %v", fields["reason"])
	}
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "ledger_entries_order_id_key" {
		t.Fatalf("pg fields = %v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatalf("empty pg_detail should be omitted")
	}
	chain, _ := fields["error_chain"].([]string)
	if len(chain) != 3 || chain[2] != "*pgconn.PgError" {
		t.Fatalf("chain = %v", chain)
	}
}

func TestPostgresFaultOfLibPQ(t *testing.T) {
	err := fmt.Errorf("query: %w", &pq.Error{Code: "40P01", Table: "payouts", Detail: "deadlock"})
	fault, ok := PostgresFaultOf(err)
	if !ok {
		t.Fatalf("expected lib/pq error to be recognised")
	}
	if fault.SQLState != "40P01" || fault.Table != "payouts" || fault.Detail != "deadlock" {
		t.Fatalf("fault = %+v", fault)
	}
	if _, ok := PostgresFaultOf(fmt.Errorf("plain")); ok {
		t.Fatalf("plain error should not match")
	}
}

func TestLogFieldsNil(t *testing.T) {
	if got := LogFields(nil); len(got) != 0 {
		t.Fatalf("LogFields(nil) = %v", got)
	}
}
