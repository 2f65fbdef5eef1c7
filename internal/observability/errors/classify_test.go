package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

type staleSnapshotError struct{}

func (staleSnapshotError) Error() string { return "snapshot is stale" }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", fmt.Errorf("load stations: %w", context.Canceled), "canceled"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"postgres sqlstate", fmt.Errorf("persist run: %w", &pgconn.PgError{Code: "23505"}), "pg_23505"},
		{"network timeout", &net.DNSError{Err: "lookup timeout", IsTimeout: true}, "net_timeout"},
		{"network fault", &net.DNSError{Err: "no such host"}, "net_error"},
		{"plain error collapses", errors.New("boom"), "error"},
		{"wrapped plain error collapses", fmt.Errorf("resolve bucket: %w", errors.New("boom")), "error"},
		{"typed error keeps its name", staleSnapshotError{}, "errors_stalesnapshoterror"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
