package manager

import (
	"fmt"
	"net/http"
)

// apiError is the internal error carrier. Kind selects the HTTP status
// and the machine-readable code/type of the wire envelope.
type apiError struct {
	kind errKind
	msg  string
}

type errKind int

const (
	kindModelNotFound errKind = iota
	kindModelNotChat
	kindBusy
	kindModelNotLoaded
	kindModelInitFailed
	kindSlotTimeout
	kindJoin
)

func (e apiError) Error() string { return e.msg }

// StatusCode implements the HTTPError contract consumed by the HTTP
// layer.
func (e apiError) StatusCode() int {
	switch e.kind {
	case kindModelNotFound, kindModelNotChat, kindModelNotLoaded:
		return http.StatusBadRequest
	case kindBusy, kindSlotTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable code of the wire envelope.
func (e apiError) Code() string {
	switch e.kind {
	case kindModelNotFound:
		return "model_not_found"
	case kindModelNotChat:
		return "model_not_chat"
	case kindBusy:
		return "busy"
	case kindModelNotLoaded:
		return "resource_not_found"
	case kindModelInitFailed:
		return "model_init_failed"
	case kindSlotTimeout:
		return "slot_timeout"
	default:
		return "join_failed"
	}
}

// Type is the envelope's error class.
func (e apiError) Type() string {
	switch e.kind {
	case kindModelNotFound, kindModelNotChat:
		return "invalid_request_error"
	case kindBusy:
		return "busy"
	case kindModelNotLoaded:
		return "resource_not_found"
	case kindModelInitFailed:
		return "model_init_failed"
	default:
		return "internal_error"
	}
}

// ErrModelNotFound reports an unknown model id.
func ErrModelNotFound(id string) error {
	return apiError{kind: kindModelNotFound,
		msg: fmt.Sprintf("The model %s does not exist or you do not have access to it.", id)}
}

// ErrModelNotChat rejects chat requests against non-chat catalog entries.
func ErrModelNotChat(id string) error {
	return apiError{kind: kindModelNotChat,
		msg: fmt.Sprintf("The model %s is not a chat model.", id)}
}

// ErrBusy reports that another model swap holds the slot registry.
func ErrBusy() error {
	return apiError{kind: kindBusy,
		msg: "There is another instance running, please wait until it has finished."}
}

// ErrModelNotLoaded rejects a non-streaming request against an
// unresident model: loading is only observable through streaming.
func ErrModelNotLoaded(id string) error {
	return apiError{kind: kindModelNotLoaded,
		msg: fmt.Sprintf("Model %s is not loaded, use stream mode chat to load it.", id)}
}

// ErrModelInitFailed wraps a native-load or tokenizer failure.
func ErrModelInitFailed(err error) error {
	return apiError{kind: kindModelInitFailed, msg: fmt.Sprintf("LLM init failed: %v", err)}
}

// ErrSlotTimeout reports a mailbox handshake that exceeded its budget.
func ErrSlotTimeout() error {
	return apiError{kind: kindSlotTimeout, msg: "Server busy: model slot handshake timed out."}
}

// ErrInternalJoin wraps a worker that failed to complete at all.
func ErrInternalJoin(err error) error {
	return apiError{kind: kindJoin, msg: fmt.Sprintf("Join error: %v", err)}
}

func isKind(err error, k errKind) bool {
	ae, ok := err.(apiError)
	return ok && ae.kind == k
}

// IsModelNotFound reports whether err is an unknown-model error.
func IsModelNotFound(err error) bool { return isKind(err, kindModelNotFound) }

// IsBusy reports whether err is admission-control backpressure.
func IsBusy(err error) bool { return isKind(err, kindBusy) }

// IsModelNotLoaded reports whether err is the non-streaming-unresident
// rejection.
func IsModelNotLoaded(err error) bool { return isKind(err, kindModelNotLoaded) }

// IsSlotTimeout reports whether err is a handshake timeout.
func IsSlotTimeout(err error) bool { return isKind(err, kindSlotTimeout) }

// WireError describes errors that know their wire envelope fields.
// apiError is the only implementation; the HTTP layer consumes it.
type WireError interface {
	error
	StatusCode() int
	Code() string
	Type() string
}
