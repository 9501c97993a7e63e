package core

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// ErrorClass groups failures by how the engine reacts to them.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	// ClassConnectivity is always retryable and triggers queuing.
	ClassConnectivity
	ClassAuth
	ClassValidation
	ClassServer
	ClassDecoding
	ClassStorage
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConnectivity:
		return "connectivity_error"
	case ClassAuth:
		return "auth_error"
	case ClassValidation:
		return "validation_error"
	case ClassServer:
		return "server_error"
	case ClassDecoding:
		return "decoding_error"
	case ClassStorage:
		return "storage_error"
	default:
		return "unknown_error"
	}
}

// Classifier is implemented by errors that know their class.
type Classifier interface {
	Class() ErrorClass
}

// ClassOf walks the wrap chain and returns the first class it can determine.
// Caller cancellation is deliberately left as ClassUnknown.
func ClassOf(err error) ErrorClass {
	if err == nil || errors.Is(err, context.Canceled) {
		return ClassUnknown
	}
	var c Classifier
	if errors.As(err, &c) {
		return c.Class()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassConnectivity
	}
	return ClassUnknown
}

// IsConnectivity reports whether err should be recovered by queuing locally.
func IsConnectivity(err error) bool {
	return ClassOf(err) == ClassConnectivity
}
