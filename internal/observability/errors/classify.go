// Package errors maps Go errors onto stable, low-cardinality class names
// for metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Classify returns a class name for err suitable for tagging metrics. The
// failure families the worker pipeline actually produces get fixed names:
// Postgres errors carry their SQLSTATE code, timeouts and cancellation are
// named directly, and network faults collapse to one class. Anything else
// falls back to the innermost error's Go type.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return "pg_" + strings.ToLower(pgErr.Code)
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return "net_timeout"
		}
		return "net_error"
	}

	return typeClass(err)
}

// typeClass unwraps to the innermost error and normalizes its type name.
// Plain errors.New / fmt.Errorf values share one unexported stdlib type, so
// they collapse to a generic class rather than leaking its name.
func typeClass(err error) string {
	for {
		inner := goerrors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}

	name := strings.ToLower(fmt.Sprintf("%T", err))
	name = strings.NewReplacer("*", "", ".", "_").Replace(name)
	if name == "" || strings.HasPrefix(name, "errors_") {
		return "error"
	}
	return name
}
