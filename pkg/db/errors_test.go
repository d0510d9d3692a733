package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_webhook_events_event_id"}

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "pg error any constraint", err: pgErr, want: true},
		{name: "pg error matching constraint", err: pgErr, constraint: "ux_webhook_events_event_id", want: true},
		{name: "pg error other constraint", err: pgErr, constraint: "ux_listings_listing_id", want: false},
		{
			name: "wrapped pg error",
			err:  fmt.Errorf("insert ledger record: %w", pgErr),
			want: true,
		},
		{
			name: "postgres message shape",
			err:  errors.New(`ERROR: duplicate key value violates unique constraint "ux_webhook_events_event_id" (SQLSTATE 23505)`),
			constraint: "ux_webhook_events_event_id",
			want: true,
		},
		{
			name: "sqlite message shape",
			err:  errors.New("UNIQUE constraint failed: webhook_events.event_id"),
			want: true,
		},
		{name: "unrelated error", err: errors.New("connection refused"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation(%v, %q) = %v, want %v", tc.err, tc.constraint, got, tc.want)
			}
		})
	}
}
