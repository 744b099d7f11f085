// Package mock provides a configurable in-memory pkg/gateway/speech.Gateway
// for tests, driven by per-method function fields.
package mock

import (
	"context"

	"github.com/autoclipper/pipeline/pkg/gateway/speech"
)

// Gateway is a speech.Gateway whose behaviour is entirely driven by its
// function fields. Unset fields return one empty result per requested window
// and a nil error.
type Gateway struct {
	Pass1Func func(ctx context.Context, sourceAudioPath string, windows []speech.Window) ([]speech.Pass1Result, error)
	Pass2Func func(ctx context.Context, sourceAudioPath string, windows []speech.Window) ([]speech.Pass2Result, error)
}

var _ speech.Gateway = (*Gateway)(nil)

func (g *Gateway) Pass1(ctx context.Context, sourceAudioPath string, windows []speech.Window) ([]speech.Pass1Result, error) {
	if g.Pass1Func != nil {
		return g.Pass1Func(ctx, sourceAudioPath, windows)
	}
	results := make([]speech.Pass1Result, 0, len(windows))
	for _, w := range windows {
		results = append(results, speech.Pass1Result{WindowID: w.ID})
	}
	return results, nil
}

func (g *Gateway) Pass2(ctx context.Context, sourceAudioPath string, windows []speech.Window) ([]speech.Pass2Result, error) {
	if g.Pass2Func != nil {
		return g.Pass2Func(ctx, sourceAudioPath, windows)
	}
	results := make([]speech.Pass2Result, 0, len(windows))
	for _, w := range windows {
		results = append(results, speech.Pass2Result{ClipID: w.ID})
	}
	return results, nil
}
