// Package report records one Entry per scenario in a provider.Provider and
// reads a run back for the summary.
package report

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/cascheck"
)

// Status is the outcome of one scenario.
type Status uint8

const (
	StatusPass Status = iota + 1
	StatusFail
	StatusInconclusive
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	case StatusInconclusive:
		return "inconclusive"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusPass, StatusFail, StatusInconclusive, StatusError} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("report: unknown status %q", s)
}

func (s Status) valid() bool { return s >= StatusPass && s <= StatusError }

// Check is one replica read-back, flattened for storage.
type Check struct {
	Op       string        `json:"op" msgpack:"op"`
	Key      string        `json:"key" msgpack:"key"`
	Expected string        `json:"expected" msgpack:"expected"`
	Observed string        `json:"observed" msgpack:"observed"`
	Elapsed  time.Duration `json:"elapsed" msgpack:"elapsed"`
	Polls    int           `json:"polls" msgpack:"polls"`
	Match    bool          `json:"match" msgpack:"match"`
}

// CheckOf flattens a verification result.
func CheckOf(r cascheck.VerificationResult) Check {
	return Check{
		Op:       r.Op,
		Key:      r.Key,
		Expected: r.Expected.String(),
		Observed: r.Observed.String(),
		Elapsed:  r.Elapsed,
		Polls:    r.Polls,
		Match:    r.Match,
	}
}

// Entry is the persisted result of one scenario.
type Entry struct {
	Run      string        `json:"run" msgpack:"run"`
	Scenario string        `json:"scenario" msgpack:"scenario"`
	Seq      uint32        `json:"seq" msgpack:"seq"`
	Status   Status        `json:"status" msgpack:"status"`
	Checks   []Check       `json:"checks,omitempty" msgpack:"checks,omitempty"`
	Attempts int           `json:"attempts,omitempty" msgpack:"attempts,omitempty"` // transaction attempts, when any
	Err      string        `json:"err,omitempty" msgpack:"err,omitempty"`
	Started  time.Time     `json:"started" msgpack:"started"`
	Duration time.Duration `json:"duration" msgpack:"duration"`
	Notes    []string      `json:"notes,omitempty" msgpack:"notes,omitempty"`
}

// Mismatches counts the checks that did not match.
func (e Entry) Mismatches() int {
	n := 0
	for _, c := range e.Checks {
		if !c.Match {
			n++
		}
	}
	return n
}
