// Package cbs defines the injected Claims-Based Security client interface
// the authentication core submits and revokes SAS tokens through, plus an
// AMQP-backed implementation and a synchronous fake for tests.
package cbs

import "context"

// TokenType is the CBS token type string this core always submits. It is a
// bit-exact external contract: ASCII, no trailing NUL in length accounting.
const TokenType = "servicebus.windows.net:sastoken"

// Result is the outcome reported by a CBS completion callback.
type Result int

const (
	// ResultOK indicates the CBS peer accepted the operation.
	ResultOK Result = iota
	// ResultError indicates the CBS peer rejected the operation.
	ResultError
)

// CompletionFunc is invoked exactly once per PutToken/DeleteToken call, on
// whatever thread or goroutine the Client delivers completions on. The
// authentication core tolerates completions delivered after it has already
// moved past the state that issued the request (see package auth).
type CompletionFunc func(result Result, statusCode uint32, statusDescription string)

// Client is the injected CBS peer. Both operations return immediately with
// an error only if the request could not be submitted at all; successful
// submission is always followed, later, by exactly one call to onComplete.
type Client interface {
	// PutToken submits token for audience under TokenType.
	PutToken(ctx context.Context, audience, token string, onComplete CompletionFunc) error
	// DeleteToken revokes the token previously submitted for audience.
	DeleteToken(ctx context.Context, audience string, onComplete CompletionFunc) error
}
