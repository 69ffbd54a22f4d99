package gateway

import (
	"errors"
	"fmt"
)

// ErrNoIdentity is returned when a claim is submitted without a registered
// user. No request is made.
var ErrNoIdentity = errors.New("no identity registered")

// ConfigError reports missing or invalid client configuration. No request is
// made.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Message
}

// NetworkError wraps a transport failure: the request may or may not have
// reached the server.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// ServerError is a non-2xx response from the claim endpoint.
type ServerError struct {
	StatusCode int
	// Detail is the server's "detail" field when present, otherwise the raw
	// body, possibly empty.
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error: status %d: %s", e.StatusCode, e.Detail)
}

// Kind classifies err for display: "config", "identity", "network", "server"
// or "unknown". A nil error has kind "".
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var configErr *ConfigError
	var networkErr *NetworkError
	var serverErr *ServerError
	switch {
	case errors.As(err, &configErr):
		return "config"
	case errors.Is(err, ErrNoIdentity):
		return "identity"
	case errors.As(err, &networkErr):
		return "network"
	case errors.As(err, &serverErr):
		return "server"
	default:
		return "unknown"
	}
}
