// Package kit is the transport-agnostic endpoint layer: a service method
// wrapped as an Endpoint can be exposed over MCP and HTTP without the
// service knowing either protocol.
package kit

import "context"

// Endpoint is a single request/response interaction.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first argument is the
// outermost wrapper.
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}
