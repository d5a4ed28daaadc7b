// Package command implements a typed request/response bus. Each request
// type is bound to exactly one handler; dispatch resolves the handler by
// the request's concrete type and returns the response type the request
// declares. The request/response pairing is enforced at compile time:
// Register and Send share the Command constraint, so a handler stored
// for a request can only ever produce that request's declared response.
package command

import (
	"context"
	"reflect"
	"sync"

	"otp-auth-service/internal/status"
)

// Command is the marker a request type implements to declare its
// response type. Response is never called at dispatch time; it exists
// so the compiler ties each request to exactly one response type (a
// type cannot implement Response twice with different results).
type Command[R any] interface {
	Response() R
}

// Handler processes one request type.
type Handler[Req Command[R], R any] interface {
	Handle(ctx context.Context, req Req) (R, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc[Req Command[R], R any] func(ctx context.Context, req Req) (R, error)

func (f HandlerFunc[Req, R]) Handle(ctx context.Context, req Req) (R, error) {
	return f(ctx, req)
}

// Bus routes requests to their registered handlers. Registration is a
// configuration-time operation and is serialized; dispatch is
// read-only on the registry and runs fully concurrently. Handlers must
// be safe for concurrent use: the bus takes no per-handler lock, so
// mutable state belongs in internally-synchronized dependencies, not
// in the handler itself.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]any
}

func New() *Bus {
	return &Bus{handlers: make(map[reflect.Type]any)}
}

// Register binds h to the request type Req. Re-registering the same
// request type replaces the prior handler; the last registration wins.
func Register[Req Command[R], R any](b *Bus, h Handler[Req, R]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[requestType[Req, R]()] = h
}

// Send dispatches req to the single handler registered for its type and
// returns the typed response. A request type nobody registered yields
// an internal "handler not found" status.
func Send[R any, Req Command[R]](ctx context.Context, b *Bus, req Req) (R, error) {
	var zero R

	b.mu.RLock()
	entry, ok := b.handlers[requestType[Req, R]()]
	b.mu.RUnlock()

	if !ok {
		return zero, status.Internal("handler not found")
	}

	h, ok := entry.(Handler[Req, R])
	if !ok {
		// Unreachable when the registry is populated through Register,
		// which binds Req and R under the same constraint as Send.
		return zero, status.Internal("handler type mismatch")
	}

	return h.Handle(ctx, req)
}

func requestType[Req Command[R], R any]() reflect.Type {
	return reflect.TypeOf((*Req)(nil)).Elem()
}
