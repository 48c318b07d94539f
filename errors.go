package cascheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// ErrExhaustedRetries is matched by *ConflictExhausted.
var ErrExhaustedRetries = errors.New("cascheck: optimistic transaction exhausted retries")

// Role names the endpoint a request was sent to.
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// ConnectivityError means an endpoint was unreachable or a request timed out.
// The outcome of the check is unknown, not inconsistent.
type ConnectivityError struct {
	Role Role
	Op   string
	Err  error
}

func (e *ConnectivityError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s unreachable: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("%s unreachable during %s: %v", e.Role, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ConsistencyMismatch reports a replica value that differs from the expected
// one after the settle policy ran out.
type ConsistencyMismatch struct {
	Op       string
	Key      string
	Expected Value
	Observed Value
}

func (e *ConsistencyMismatch) Error() string {
	return fmt.Sprintf("replica mismatch on %s %q: expected %s, observed %s",
		e.Op, e.Key, e.Expected, e.Observed)
}

// ConflictExhausted is returned by Runner.Run once every attempt lost its
// conditional commit.
type ConflictExhausted struct {
	Key      string
	Attempts int
	Last     error
}

func (e *ConflictExhausted) Error() string {
	return fmt.Sprintf("transaction on %q: %d attempts conflicted: %v", e.Key, e.Attempts, e.Last)
}

func (e *ConflictExhausted) Unwrap() []error {
	errs := make([]error, 0, 2)
	errs = append(errs, ErrExhaustedRetries)
	if e.Last != nil {
		errs = append(errs, e.Last)
	}
	return errs
}

// ScriptExecutionError wraps a failed server-side script or a reply of an
// unexpected type. Output carries the server's diagnostic text or the reply.
type ScriptExecutionError struct {
	Script string
	Output string
	Err    error
}

func (e *ScriptExecutionError) Error() string {
	switch {
	case e.Err != nil && e.Output != "":
		return fmt.Sprintf("script %s failed: %v (output: %s)", e.Script, e.Err, e.Output)
	case e.Err != nil:
		return fmt.Sprintf("script %s failed: %v", e.Script, e.Err)
	default:
		return fmt.Sprintf("script %s returned unexpected reply: %s", e.Script, e.Output)
	}
}

func (e *ScriptExecutionError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err is a transport-level failure: refused or
// reset connections, timeouts, a closed client.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	var ne net.Error
	switch {
	case errors.As(err, &ne):
		return true
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, redis.ErrClosed):
		return true
	}
	return false
}

// Classify wraps transport failures in *ConnectivityError and passes every
// other error through.
func Classify(role Role, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return err
	}
	if IsConnectivity(err) {
		return &ConnectivityError{Role: role, Op: op, Err: err}
	}
	return err
}
