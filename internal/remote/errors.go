package remote

import (
	"errors"
	"fmt"

	"fintrack/internal/core"
)

// Kind classifies a failed remote call.
type Kind int

const (
	InvalidURL Kind = iota + 1
	NoResponse
	Unauthorized
	NotFound
	ServerError
	UnexpectedStatus
	Decoding
	Custom
)

func (k Kind) String() string {
	switch k {
	case InvalidURL:
		return "invalid_url"
	case NoResponse:
		return "no_response"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case ServerError:
		return "server_error"
	case UnexpectedStatus:
		return "unexpected_status"
	case Decoding:
		return "decoding"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method for failures other than caller cancellation.
// Status is set for kinds derived from an HTTP response; Message carries the server's text
// for Custom errors.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("remote %s (%d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("remote %s: %v", e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("remote %s: status %d", e.Kind, e.Status)
	default:
		return "remote " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Class implements core.Classifier.
func (e *Error) Class() core.ErrorClass {
	switch e.Kind {
	case NoResponse:
		return core.ClassConnectivity
	case Unauthorized:
		return core.ClassAuth
	case InvalidURL, NotFound, Custom:
		return core.ClassValidation
	case ServerError, UnexpectedStatus:
		return core.ClassServer
	case Decoding:
		return core.ClassDecoding
	default:
		return core.ClassUnknown
	}
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == NotFound
}
