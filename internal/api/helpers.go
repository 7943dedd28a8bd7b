// Package api implements the HTTP API for remote bus access.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micro-nova/tinyi2c/internal/bus"
	"github.com/micro-nova/tinyi2c/internal/trace"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	bus    Bus
	events EventHub
}

// Bus is the interface the handlers use to reach the peripherals.
type Bus interface {
	Tx(ctx context.Context, addr uint8, w, r []byte) error
	Scan(ctx context.Context) ([]uint8, error)
}

// EventHub is the interface for subscribing to bus events.
type EventHub interface {
	Subscribe(id string) <-chan trace.Event
	Unsubscribe(id string)
}

// Error is a structured API error with HTTP status code.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string { return e.Message }

func errBadRequest(msg string) *Error {
	return &Error{Code: "BAD_REQUEST", Message: msg, Status: http.StatusBadRequest}
}

// busError maps a bus error to its API error.
func busError(err error) *Error {
	switch {
	case errors.Is(err, bus.ErrNoDevice):
		return &Error{Code: "NO_DEVICE", Message: err.Error(), Status: http.StatusNotFound}
	case errors.Is(err, bus.ErrNACK):
		return &Error{Code: "NACK", Message: err.Error(), Status: http.StatusConflict}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: "CANCELED", Message: err.Error(), Status: http.StatusServiceUnavailable}
	}
	return &Error{Code: "INTERNAL", Message: err.Error(), Status: http.StatusInternalServerError}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an Error as a JSON response.
func writeError(w http.ResponseWriter, err *Error) {
	writeJSON(w, err.Status, err)
}
