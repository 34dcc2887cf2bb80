package model

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeNetworkFailure = "REP001"
	ErrCodeOffline        = "REP002"
)

// Errors
var (
	ErrNetworkFailure = errors.New("network failure")
	ErrOffline        = errors.New("replication is offline")
)

// NetworkError is a transient failure talking to the remote peer.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetworkFailure, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkFailure
}

func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// CodeOf returns the error code for err, or "" when it is not a replication error.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrNetworkFailure):
		return ErrCodeNetworkFailure
	case errors.Is(err, ErrOffline):
		return ErrCodeOffline
	}
	return ""
}
