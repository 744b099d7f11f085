package llm

import (
	"context"

	"github.com/autoclipper/pipeline/internal/resilience"
)

// WithCircuitBreaker wraps next with a circuit breaker, so a struggling LLM
// provider fails fast instead of stacking up slow requests behind it. Once
// cfg's failure threshold trips, calls return resilience.ErrCircuitOpen
// immediately until the reset timeout elapses and a half-open probe succeeds.
func WithCircuitBreaker(next Gateway, cfg resilience.CircuitBreakerConfig) Gateway {
	return &breakerGateway{next: next, cb: resilience.NewCircuitBreaker(cfg)}
}

type breakerGateway struct {
	next Gateway
	cb   *resilience.CircuitBreaker
}

var _ Gateway = (*breakerGateway)(nil)

func (g *breakerGateway) Shortlist(ctx context.Context, req ShortlistRequest) (ShortlistResponse, error) {
	var resp ShortlistResponse
	err := g.cb.Execute(func() error {
		var callErr error
		resp, callErr = g.next.Shortlist(ctx, req)
		return callErr
	})
	return resp, err
}

func (g *breakerGateway) Refine(ctx context.Context, req RefineRequest) (RefineResponse, error) {
	var resp RefineResponse
	err := g.cb.Execute(func() error {
		var callErr error
		resp, callErr = g.next.Refine(ctx, req)
		return callErr
	})
	return resp, err
}

func (g *breakerGateway) ValidateOpening(ctx context.Context, req ValidateOpeningRequest) (ValidateOpeningResponse, error) {
	var resp ValidateOpeningResponse
	err := g.cb.Execute(func() error {
		var callErr error
		resp, callErr = g.next.ValidateOpening(ctx, req)
		return callErr
	})
	return resp, err
}

func (g *breakerGateway) FinalQC(ctx context.Context, req FinalQCRequest) (FinalQCResponse, error) {
	var resp FinalQCResponse
	err := g.cb.Execute(func() error {
		var callErr error
		resp, callErr = g.next.FinalQC(ctx, req)
		return callErr
	})
	return resp, err
}

func (g *breakerGateway) Package(ctx context.Context, req PackageRequest) (PackageResponse, error) {
	var resp PackageResponse
	err := g.cb.Execute(func() error {
		var callErr error
		resp, callErr = g.next.Package(ctx, req)
		return callErr
	})
	return resp, err
}
