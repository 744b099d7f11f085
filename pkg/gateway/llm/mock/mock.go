// Package mock provides a configurable in-memory pkg/gateway/llm.Gateway for
// tests, driven by per-method function fields.
package mock

import (
	"context"

	gwllm "github.com/autoclipper/pipeline/pkg/gateway/llm"
)

// Gateway is a gwllm.Gateway whose behaviour is entirely driven by its
// function fields. With a field unset, Shortlist and Package return zero
// values, Refine echoes the request's clips, ValidateOpening passes, and
// FinalQC passes with a RecutNone plan; all return a nil error.
type Gateway struct {
	ShortlistFunc       func(ctx context.Context, req gwllm.ShortlistRequest) (gwllm.ShortlistResponse, error)
	RefineFunc          func(ctx context.Context, req gwllm.RefineRequest) (gwllm.RefineResponse, error)
	ValidateOpeningFunc func(ctx context.Context, req gwllm.ValidateOpeningRequest) (gwllm.ValidateOpeningResponse, error)
	FinalQCFunc         func(ctx context.Context, req gwllm.FinalQCRequest) (gwllm.FinalQCResponse, error)
	PackageFunc         func(ctx context.Context, req gwllm.PackageRequest) (gwllm.PackageResponse, error)
}

var _ gwllm.Gateway = (*Gateway)(nil)

func (g *Gateway) Shortlist(ctx context.Context, req gwllm.ShortlistRequest) (gwllm.ShortlistResponse, error) {
	if g.ShortlistFunc != nil {
		return g.ShortlistFunc(ctx, req)
	}
	return gwllm.ShortlistResponse{}, nil
}

func (g *Gateway) Refine(ctx context.Context, req gwllm.RefineRequest) (gwllm.RefineResponse, error) {
	if g.RefineFunc != nil {
		return g.RefineFunc(ctx, req)
	}
	return gwllm.RefineResponse{Clips: req.Clips}, nil
}

func (g *Gateway) ValidateOpening(ctx context.Context, req gwllm.ValidateOpeningRequest) (gwllm.ValidateOpeningResponse, error) {
	if g.ValidateOpeningFunc != nil {
		return g.ValidateOpeningFunc(ctx, req)
	}
	return gwllm.ValidateOpeningResponse{Pass: true}, nil
}

func (g *Gateway) FinalQC(ctx context.Context, req gwllm.FinalQCRequest) (gwllm.FinalQCResponse, error) {
	if g.FinalQCFunc != nil {
		return g.FinalQCFunc(ctx, req)
	}
	return gwllm.FinalQCResponse{Pass: true, RecutPlan: gwllm.RecutPlan{Action: gwllm.RecutNone}}, nil
}

func (g *Gateway) Package(ctx context.Context, req gwllm.PackageRequest) (gwllm.PackageResponse, error) {
	if g.PackageFunc != nil {
		return g.PackageFunc(ctx, req)
	}
	return gwllm.PackageResponse{}, nil
}
