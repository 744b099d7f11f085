// Package ffmpeg implements pkg/gateway/media.Gateway by shelling out to
// yt-dlp for source acquisition and probing, and to ffmpeg for silence
// detection, cutting, and thumbnailing, following the subprocess-with-
// captured-stderr pattern used elsewhere in the pack for process supervision.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autoclipper/pipeline/pkg/gateway/media"
)

// Fixed invariants of the cutter, per the clip extraction contract.
const (
	cutPadSec       = 1.5
	thumbnailAtSec  = 1.0
	subtitleStyle   = "Alignment=2,Fontname=Arial,FontSize=16,PrimaryColour=&H00FFFF00,OutlineColour=&H00000000,BorderStyle=1,Outline=1,Shadow=1,MarginV=20"
	maxDownloadVert = 720
)

// Gateway implements media.Gateway by invoking the yt-dlp and ffmpeg binaries
// as subprocesses, each bounded by its own timeout.
type Gateway struct {
	ytDlpPath  string
	ffmpegPath string
	workDir    string

	probeTimeout    time.Duration
	downloadTimeout time.Duration
	silenceTimeout  time.Duration
	cutTimeout      time.Duration
	thumbTimeout    time.Duration
}

var _ media.Gateway = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithBinaries overrides the yt-dlp and ffmpeg executable paths (default:
// resolved from PATH as "yt-dlp" and "ffmpeg").
func WithBinaries(ytDlpPath, ffmpegPath string) Option {
	return func(g *Gateway) {
		if ytDlpPath != "" {
			g.ytDlpPath = ytDlpPath
		}
		if ffmpegPath != "" {
			g.ffmpegPath = ffmpegPath
		}
	}
}

// WithTimeouts overrides the per-operation subprocess timeouts.
func WithTimeouts(probe, download, silence, cut, thumb time.Duration) Option {
	return func(g *Gateway) {
		g.probeTimeout, g.downloadTimeout = probe, download
		g.silenceTimeout, g.cutTimeout, g.thumbTimeout = silence, cut, thumb
	}
}

// New creates a Gateway that writes downloaded and rendered media under workDir.
func New(workDir string, opts ...Option) (*Gateway, error) {
	if workDir == "" {
		return nil, fmt.Errorf("ffmpeg gateway: workDir must not be empty")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("ffmpeg gateway: create workDir: %w", err)
	}
	g := &Gateway{
		ytDlpPath:       "yt-dlp",
		ffmpegPath:      "ffmpeg",
		workDir:         workDir,
		probeTimeout:    60 * time.Second,
		downloadTimeout: 300 * time.Second,
		silenceTimeout:  300 * time.Second,
		cutTimeout:      300 * time.Second,
		thumbTimeout:    30 * time.Second,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// ---- Probe -------------------------------------------------------------

type ytDlpChapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type ytDlpInfo struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Duration float64        `json:"duration"`
	Uploader string         `json:"uploader"`
	Chapters []ytDlpChapter `json:"chapters"`
}

func (g *Gateway) Probe(ctx context.Context, url string) (media.ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()

	stdout, stderr, err := g.run(ctx, g.ytDlpPath, "-J", "--no-download", url)
	if err != nil {
		return media.ProbeResult{}, fmt.Errorf("media gateway: probe %q: %w: %s", url, err, stderr)
	}

	var info ytDlpInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return media.ProbeResult{}, fmt.Errorf("media gateway: parse probe JSON: %w", err)
	}

	chapters := make([]media.Chapter, 0, len(info.Chapters))
	for _, c := range info.Chapters {
		chapters = append(chapters, media.Chapter{Title: c.Title, StartSec: c.StartTime, EndSec: c.EndTime})
	}

	return media.ProbeResult{
		ID:          info.ID,
		Title:       info.Title,
		Uploader:    info.Uploader,
		DurationSec: info.Duration,
		Chapters:    chapters,
	}, nil
}

// ---- DownloadAudio / DownloadFull ---------------------------------------

func (g *Gateway) DownloadAudio(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.downloadTimeout)
	defer cancel()

	id := uuid.NewString()
	tmpl := filepath.Join(g.workDir, id+".%(ext)s")

	_, stderr, err := g.run(ctx, g.ytDlpPath,
		"-f", "bestaudio[ext=m4a]/bestaudio",
		"-o", tmpl,
		"--no-playlist",
		url,
	)
	if err != nil {
		return "", fmt.Errorf("media gateway: download audio %q: %w: %s", url, err, stderr)
	}

	for _, ext := range []string{"m4a", "webm", "mp3", "opus"} {
		path := filepath.Join(g.workDir, id+"."+ext)
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("media gateway: downloaded audio file not found for %q", url)
}

func (g *Gateway) DownloadFull(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.downloadTimeout)
	defer cancel()

	id := uuid.NewString()
	tmpl := filepath.Join(g.workDir, id+".%(ext)s")
	format := fmt.Sprintf("bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%d][ext=mp4]/best", maxDownloadVert, maxDownloadVert)

	_, stderr, err := g.run(ctx, g.ytDlpPath,
		"-f", format,
		"-o", tmpl,
		"--no-playlist",
		"--merge-output-format", "mp4",
		url,
	)
	if err != nil {
		return "", fmt.Errorf("media gateway: download full %q: %w: %s", url, err, stderr)
	}

	path := filepath.Join(g.workDir, id+".mp4")
	if _, statErr := os.Stat(path); statErr != nil {
		return "", fmt.Errorf("media gateway: downloaded video file not found for %q", url)
	}
	return path, nil
}

// ---- DetectSilence -------------------------------------------------------

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*([0-9.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*([0-9.]+)`)
)

func (g *Gateway) DetectSilence(ctx context.Context, audioPath string, thresholdDB int, minSilenceSec float64) ([]media.SilenceInterval, error) {
	ctx, cancel := context.WithTimeout(ctx, g.silenceTimeout)
	defer cancel()

	filter := fmt.Sprintf("silencedetect=n=%ddB:d=%g", thresholdDB, minSilenceSec)
	_, stderr, err := g.run(ctx, g.ffmpegPath,
		"-i", audioPath,
		"-af", filter,
		"-f", "null",
		"-",
	)
	if err != nil {
		slog.Warn("media gateway: silence detection subprocess failed", "error", err, "path", audioPath)
		return nil, fmt.Errorf("media gateway: detect silence: %w: %s", err, stderr)
	}

	return parseSilenceDetect(string(stderr)), nil
}

// parseSilenceDetect scans ffmpeg's silencedetect filter output for
// "silence_start:"/"silence_end:" line pairs, matching the filter's own
// emission order.
func parseSilenceDetect(stderrText string) []media.SilenceInterval {
	var intervals []media.SilenceInterval
	var start *float64

	for _, line := range strings.Split(stderrText, "\n") {
		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			start = &v
			continue
		}
		if m := silenceEndRe.FindStringSubmatch(line); m != nil && start != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			intervals = append(intervals, media.SilenceInterval{Start: *start, End: v})
			start = nil
		}
	}
	return intervals
}

// ---- Cut / Thumbnail -----------------------------------------------------

func (g *Gateway) Cut(ctx context.Context, sourcePath string, startSec, endSec float64, subtitlePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cutTimeout)
	defer cancel()

	start := startSec - cutPadSec
	if start < 0 {
		start = 0
	}
	end := endSec + cutPadSec
	duration := end - start

	outPath := filepath.Join(g.workDir, uuid.NewString()+".mp4")

	vf := "crop=w=ih*(9/16):h=ih:x=(iw-ow)/2:y=0"
	if subtitlePath != "" {
		if _, err := os.Stat(subtitlePath); err == nil {
			vf += fmt.Sprintf(",subtitles=%s:force_style='%s'", escapeFFmpegPath(subtitlePath), subtitleStyle)
		}
	}

	_, stderr, err := g.run(ctx, g.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%g", start),
		"-t", fmt.Sprintf("%g", duration),
		"-i", sourcePath,
		"-vf", vf,
		"-vcodec", "libx264",
		"-acodec", "aac",
		"-preset", "ultrafast",
		"-strict", "experimental",
		outPath,
	)
	if err != nil {
		return "", fmt.Errorf("media gateway: cut %q [%g,%g]: %w: %s", sourcePath, startSec, endSec, err, stderr)
	}
	return outPath, nil
}

func (g *Gateway) Thumbnail(ctx context.Context, clipPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.thumbTimeout)
	defer cancel()

	outPath := strings.TrimSuffix(clipPath, filepath.Ext(clipPath)) + ".jpg"

	_, stderr, err := g.run(ctx, g.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%g", thumbnailAtSec),
		"-i", clipPath,
		"-vframes", "1",
		outPath,
	)
	if err != nil {
		return "", fmt.Errorf("media gateway: thumbnail %q: %w: %s", clipPath, err, stderr)
	}
	return outPath, nil
}

// escapeFFmpegPath escapes characters that the subtitles filter's mini
// argument parser treats specially.
func escapeFFmpegPath(path string) string {
	r := strings.NewReplacer(":", `\:`, "'", `\'`)
	return r.Replace(path)
}

// run executes name with args under ctx's deadline and returns captured
// stdout/stderr. The caller's ctx timeout is what bounds execution; run
// itself applies no additional retry or backoff.
func (g *Gateway) run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return outBuf.Bytes(), errBuf.Bytes(), err
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}
