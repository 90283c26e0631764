package middleware

import (
	"context"
	"slices"

	"pricewatch/internal/app/commands"
	"pricewatch/internal/app/queries"
)

type (
	CommandMiddleware func(next commands.Bus) commands.Bus
	QueryMiddleware   func(next queries.Bus) queries.Bus
)

// ChainCommands wraps base so that mws[0] sees every command first.
func ChainCommands(base commands.Bus, mws ...CommandMiddleware) commands.Bus {
	return wrap(base, mws)
}

// ChainQueries is ChainCommands for the read side.
func ChainQueries(base queries.Bus, mws ...QueryMiddleware) queries.Bus {
	return wrap(base, mws)
}

func wrap[B any, M ~func(B) B](bus B, mws []M) B {
	for _, mw := range slices.Backward(mws) {
		bus = mw(bus)
	}
	return bus
}

// dispatchFunc and askFunc let a closure stand in for a bus.
type (
	dispatchFunc func(ctx context.Context, cmd commands.Command) (any, error)
	askFunc      func(ctx context.Context, q queries.Query) (any, error)
)

func (f dispatchFunc) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	return f(ctx, cmd)
}

func (f askFunc) Ask(ctx context.Context, q queries.Query) (any, error) { return f(ctx, q) }
