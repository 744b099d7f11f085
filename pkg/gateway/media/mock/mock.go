// Package mock provides a configurable in-memory pkg/gateway/media.Gateway
// for tests, driven by per-method function fields.
package mock

import (
	"context"

	"github.com/autoclipper/pipeline/pkg/gateway/media"
)

// Gateway is a media.Gateway whose behaviour is entirely driven by its
// function fields. Unset fields return zero values and a nil error.
type Gateway struct {
	ProbeFunc         func(ctx context.Context, url string) (media.ProbeResult, error)
	DownloadAudioFunc func(ctx context.Context, url string) (string, error)
	DownloadFullFunc  func(ctx context.Context, url string) (string, error)
	DetectSilenceFunc func(ctx context.Context, audioPath string, thresholdDB int, minSilenceSec float64) ([]media.SilenceInterval, error)
	CutFunc           func(ctx context.Context, sourcePath string, startSec, endSec float64, subtitlePath string) (string, error)
	ThumbnailFunc     func(ctx context.Context, clipPath string) (string, error)
}

var _ media.Gateway = (*Gateway)(nil)

func (g *Gateway) Probe(ctx context.Context, url string) (media.ProbeResult, error) {
	if g.ProbeFunc != nil {
		return g.ProbeFunc(ctx, url)
	}
	return media.ProbeResult{}, nil
}

func (g *Gateway) DownloadAudio(ctx context.Context, url string) (string, error) {
	if g.DownloadAudioFunc != nil {
		return g.DownloadAudioFunc(ctx, url)
	}
	return "", nil
}

func (g *Gateway) DownloadFull(ctx context.Context, url string) (string, error) {
	if g.DownloadFullFunc != nil {
		return g.DownloadFullFunc(ctx, url)
	}
	return "", nil
}

func (g *Gateway) DetectSilence(ctx context.Context, audioPath string, thresholdDB int, minSilenceSec float64) ([]media.SilenceInterval, error) {
	if g.DetectSilenceFunc != nil {
		return g.DetectSilenceFunc(ctx, audioPath, thresholdDB, minSilenceSec)
	}
	return nil, nil
}

func (g *Gateway) Cut(ctx context.Context, sourcePath string, startSec, endSec float64, subtitlePath string) (string, error) {
	if g.CutFunc != nil {
		return g.CutFunc(ctx, sourcePath, startSec, endSec, subtitlePath)
	}
	return "", nil
}

func (g *Gateway) Thumbnail(ctx context.Context, clipPath string) (string, error) {
	if g.ThumbnailFunc != nil {
		return g.ThumbnailFunc(ctx, clipPath)
	}
	return "", nil
}
