package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock wrapped", fmt.Errorf("update wallet: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("expected unique violation")
	}
	if IsUniqueViolation(errors.New("x")) {
		t.Fatalf("expected false for non-pg error")
	}
}

func TestNullString(t *testing.T) {
	if NullString("").Valid {
		t.Fatalf("empty string must map to NULL")
	}
	if ns := NullString("ord-1"); !ns.Valid || ns.String != "ord-1" {
		t.Fatalf("unexpected %+v", ns)
	}
}
