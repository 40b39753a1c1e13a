// Failure taxonomy for a single job report.  The core never exits the process; it returns a
// *Failure and the caller (the command line tool, the daemon) decides what to do with it.

package common

import (
	"errors"
)

type FailureKind int

const (
	// Job id not found, wrong cluster, or a pending job without runtime data.
	LookupFailure FailureKind = iota + 1

	// The metrics store returned an error or could not be reached or parsed.
	QueryFailure

	// The job is too short to measure or its data expired from the metrics store.
	DataUnavailable

	// A cached payload could not be decoded.  Callers recover by querying live data.
	DecodeFailure
)

func (k FailureKind) String() string {
	switch k {
	case LookupFailure:
		return "lookup"
	case QueryFailure:
		return "query"
	case DataUnavailable:
		return "unavailable"
	case DecodeFailure:
		return "decode"
	default:
		return "unknown"
	}
}

type Failure struct {
	Kind FailureKind
	Msg  string
	Err  error
}

func NewFailure(kind FailureKind, msg string, err error) *Failure {
	return &Failure{Kind: kind, Msg: msg, Err: err}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Msg + "\n" + f.Err.Error()
	}
	return f.Msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsKind is true if some error in err's chain is a Failure of the given kind.

func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
