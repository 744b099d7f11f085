// Package media defines the Gateway interface for the clip extraction
// pipeline's six external media operations: metadata probing, audio/video
// fetch, silence detection, cutting, and thumbnailing. Every operation is a
// single subprocess invocation or equivalent library call bounded by a strict
// timeout; implementations must not retry internally — the Work Dispatcher
// owns retry policy.
package media

import "context"

// Chapter is one named span of a probed source video.
type Chapter struct {
	Title    string
	StartSec float64
	EndSec   float64
}

// ProbeResult is the metadata-only result of Probe.
type ProbeResult struct {
	ID          string
	Title       string
	Uploader    string
	DurationSec float64
	Chapters    []Chapter
}

// SilenceInterval is one detected span of near-silence in an audio track.
type SilenceInterval struct {
	Start float64
	End   float64
}

// Gateway is the abstraction over the pipeline's single external media
// capability (source acquisition and rendering). Implementations must be
// safe for concurrent use; each method should respect ctx cancellation
// promptly since the caller enforces its own timeout.
type Gateway interface {
	// Probe fetches metadata only — no media transfer.
	Probe(ctx context.Context, url string) (ProbeResult, error)

	// DownloadAudio fetches the fastest-available audio-only stream and
	// returns the local file path.
	DownloadAudio(ctx context.Context, url string) (path string, err error)

	// DownloadFull fetches a merged video+audio stream, bounded to height
	// <= 720 for throughput, and returns the local file path.
	DownloadFull(ctx context.Context, url string) (path string, err error)

	// DetectSilence runs a silence detector over audioPath at the given
	// threshold (dB, typically negative) and minimum silence duration, and
	// returns the detected (start, end) intervals in source-relative seconds.
	DetectSilence(ctx context.Context, audioPath string, thresholdDB int, minSilenceSec float64) ([]SilenceInterval, error)

	// Cut extracts [start-1.5s, end+1.5s] from source, center-crops to 9:16,
	// optionally burns subtitlePath, and returns the output file path.
	// subtitlePath may be empty to skip subtitle burn-in.
	Cut(ctx context.Context, sourcePath string, startSec, endSec float64, subtitlePath string) (path string, err error)

	// Thumbnail extracts a single frame at +1s from clipPath and returns the
	// output file path.
	Thumbnail(ctx context.Context, clipPath string) (path string, err error)
}
