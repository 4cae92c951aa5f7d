package generation

import (
	"errors"
	"fmt"
)

type Result string

const (
	ResultNone          Result = ""
	ResultSuccess       Result = "SUCCESS"
	ResultErrSystem     Result = "ERR_SYSTEM"
	ResultErrGeneration Result = "ERR_GENERATION"
	ResultErrGeneral    Result = "ERR_GENERAL"
	ResultErrOOM        Result = "ERR_OOM"
	ResultErrPost       Result = "ERR_POST"
)

var knownResults = map[Result]struct{}{
	ResultNone:          {},
	ResultSuccess:       {},
	ResultErrSystem:     {},
	ResultErrGeneration: {},
	ResultErrGeneral:    {},
	ResultErrOOM:        {},
	ResultErrPost:       {},
}

// ResultFromString returns the result and whether it is known.
func ResultFromString(s string) (Result, bool) {
	r := Result(s)
	_, known := knownResults[r]
	return r, known
}

func (r Result) String() string {
	return string(r)
}

// Error is a failure that terminates a generation with Result.
type Error struct {
	Result Result
	Err    error
}

// Errorf returns an *Error with the formatted message.
// It wraps the last argument if the format contains %w.
func Errorf(result Result, format string, a ...any) *Error {
	return &Error{Result: result, Err: fmt.Errorf(format, a...)}
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FailureUpdate converts err into the update that fails a generation.
// Errors that aren't an *Error are system errors.
func FailureUpdate(err error) *Update {
	var genErr *Error
	if errors.As(err, &genErr) {
		return &Update{Status: StatusFailed, Result: genErr.Result, Reason: genErr.Error()}
	}
	return &Update{Status: StatusFailed, Result: ResultErrSystem, Reason: err.Error()}
}
