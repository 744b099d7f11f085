package feed

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// videoIDRegex matches a bare YouTube video id, the same shape
// original_source/autoclipper-backend/app/services/youtube.py accepts
// directly without a network round trip.
var videoIDRegex = regexp.MustCompile(`^[\w-]{11}$`)

// ExtractVideoID resolves a manual-submit input to a bare video id. It
// accepts either a raw id or a "youtube.com/watch?v=..." URL (including the
// shortened youtu.be/... form); anything else is rejected rather than
// guessed at.
func ExtractVideoID(videoURLOrID string) (string, error) {
	s := strings.TrimSpace(videoURLOrID)
	if videoIDRegex.MatchString(s) {
		return s, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("feed: not a video id or URL: %q", videoURLOrID)
	}

	if strings.HasSuffix(u.Hostname(), "youtu.be") {
		id := strings.Trim(u.Path, "/")
		if videoIDRegex.MatchString(id) {
			return id, nil
		}
	}

	if id := u.Query().Get("v"); videoIDRegex.MatchString(id) {
		return id, nil
	}

	return "", fmt.Errorf("feed: could not extract a video id from %q", videoURLOrID)
}
