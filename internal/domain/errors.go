// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidInput indicates a malformed or empty inbound message,
// rejected before any pipeline stage runs.
var ErrInvalidInput = errors.New("invalid input")

// ErrTurnCancelled indicates the caller cancelled the turn before the
// evaluation gate started. Cancellation after the gate begins is not honored.
var ErrTurnCancelled = errors.New("turn cancelled before evaluation")
