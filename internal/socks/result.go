package socks

import "fmt"

type resultState uint8

const (
	resultUnfinished resultState = iota
	resultSuccess
	resultFailure
)

// Result is the outcome of decoding a message.
type Result struct {
	state resultState
	cause error
}

var (
	// Unfinished means no message has been produced yet.
	Unfinished = Result{state: resultUnfinished}
	// Success means the message was decoded completely.
	Success = Result{state: resultSuccess}
)

// Failure means decoding failed with cause. The accompanying message holds
// whatever fields were read before the failure.
func Failure(cause error) Result {
	if cause == nil {
		panic("socks: Failure with nil cause")
	}
	return Result{state: resultFailure, cause: cause}
}

func (r Result) IsFinished() bool { return r.state != resultUnfinished }
func (r Result) IsSuccess() bool  { return r.state == resultSuccess }
func (r Result) IsFailure() bool  { return r.state == resultFailure }

// Cause returns the failure cause, or nil.
func (r Result) Cause() error { return r.cause }

func (r Result) String() string {
	switch r.state {
	case resultSuccess:
		return "success"
	case resultFailure:
		return fmt.Sprintf("failure(%v)", r.cause)
	}
	return "unfinished"
}

// Decoded pairs a message produced by a decoder with its outcome.
type Decoded struct {
	Msg    Message
	Result Result
}

func (d Decoded) String() string {
	if d.Result.IsSuccess() {
		return d.Msg.String()
	}
	return fmt.Sprintf("%s[%s]", d.Msg, d.Result)
}

// DecodeError reports structurally invalid input on the wire.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string {
	return "socks decode: " + e.Msg
}

// DecodeErrorf builds a *DecodeError.
func DecodeErrorf(format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}
