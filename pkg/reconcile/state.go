package reconcile

import (
	"time"

	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/registry"
)

// State is a step in a candidate's reconciliation.
type State string

// Candidate states. FAILED and PURGED are absorbing.
const (
	StateFetched        State = "FETCHED"
	StateValidated      State = "VALIDATED"
	StateUnchanged      State = "UNCHANGED"
	StateVersionMoved   State = "VERSION_MOVED"
	StateContentChanged State = "CONTENT_CHANGED"
	StatePersisted      State = "PERSISTED"
	StateFailed         State = "FAILED"
	StatePurged         State = "PURGED"
)

// Kind classifies a candidate failure.
type Kind string

// Failure kinds.
const (
	KindNone       Kind = ""
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindFilesystem Kind = "filesystem"
)

// Classify maps an error onto a failure kind. A validation error takes
// precedence over whatever it wraps, so an unresolvable reference is a
// validation failure even when fetching its target failed.
func Classify(err error) Kind {
	var ve *errors.ValidationError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &ve):
		return KindValidation
	case errors.IsIOError(err), errors.IsSourceMissing(err):
		return KindFilesystem
	case errors.IsFetchError(err), errors.IsTimeout(err):
		return KindNetwork
	default:
		return KindValidation
	}
}

// Outcome is the result of running one step against one candidate.
type Outcome struct {
	Key    registry.Key
	From   registry.Key // key before relocation; zero when not moved
	Source string

	State   State
	Trace   []State
	Changed bool
	Moved   bool
	Patched bool

	Status       int
	Fingerprint  string
	Endpoints    int
	Kind         Kind
	Err          error
	ErrorContext string
	Duration     time.Duration
}

func (o *Outcome) advance(s State) {
	o.State = s
	o.Trace = append(o.Trace, s)
}

func (o *Outcome) fail(err error, context string) *Outcome {
	o.Err = err
	o.Kind = Classify(err)
	o.ErrorContext = context
	if o.ErrorContext == "" {
		var ve *errors.ValidationError
		if errors.As(err, &ve) {
			o.ErrorContext = ve.Context
		}
	}
	o.advance(StateFailed)
	return o
}

// Failed reports whether the candidate ended in FAILED.
func (o *Outcome) Failed() bool {
	return o.State == StateFailed
}

// Purged reports whether the candidate was removed from the registry.
func (o *Outcome) Purged() bool {
	return o.State == StatePurged
}

// Message returns the failure message, if any.
func (o *Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
