package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad input"), false},
		{"explicit", NewTransientError(errors.New("x")), true},
		{"wrapped explicit", fmt.Errorf("outer: %w", NewTransientError(errors.New("x"))), true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("postgres: save ghosts: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"sqlstate in message", eris.New("postgres: save ghosts: ERROR: deadlock detected (SQLSTATE 40P01)"), true},
		{"non-transient sqlstate in message", eris.New("ERROR: duplicate key (SQLSTATE 23505)"), false},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"network timeout", timeoutErr{}, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	te := NewTransientError(inner)
	assert.Equal(t, "inner", te.Error())
	assert.True(t, errors.Is(te, inner))
}
