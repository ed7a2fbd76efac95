package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBotNotFound    = errors.New("bot not found")
	ErrUnknownBotType = errors.New("invalid bot type")
	ErrDuplicateBot   = errors.New("bot with this name already exists")

	// ErrExchangeAPI marks a response the exchange returned with a non-zero
	// retCode, as opposed to a request that never got an answer.
	ErrExchangeAPI = errors.New("exchange API error")
)

// ConfigError reports a violated precondition. It is surfaced to the caller
// immediately and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Reason
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// OrderError reports an order the exchange rejected or that never reached it.
// Transient is set for timeouts and transport failures.
type OrderError struct {
	Op        string
	Reason    string
	Transient bool
	Err       error
}

func (e *OrderError) Error() string {
	if e.Op == "" {
		return "order error: " + e.Reason
	}
	return fmt.Sprintf("order error: %s: %s", e.Op, e.Reason)
}

func (e *OrderError) Unwrap() error { return e.Err }

// ReadError reports a failed open orders / positions / symbols query.
// Callers degrade it to an empty result.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read error: %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsOrderError(err error) bool {
	var oe *OrderError
	return errors.As(err, &oe)
}

func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
