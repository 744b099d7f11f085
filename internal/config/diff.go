package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CandidatesChanged bool
	NewCandidates     CandidatesConfig

	ShortlistChanged bool
	NewShortlist     ShortlistConfig

	PollIntervalChanged    bool
	NewPollIntervalSeconds int
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart: the
// Candidate Generator's windowing policy, the shortlist sizing, the poll
// interval, and log level. Store/Queue/Gateway credentials require a
// process restart and are deliberately not diffed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Candidates != new.Candidates {
		d.CandidatesChanged = true
		d.NewCandidates = new.Candidates
	}

	if old.Shortlist != new.Shortlist {
		d.ShortlistChanged = true
		d.NewShortlist = new.Shortlist
	}

	if old.Poller.IntervalSeconds != new.Poller.IntervalSeconds {
		d.PollIntervalChanged = true
		d.NewPollIntervalSeconds = new.Poller.IntervalSeconds
	}

	return d
}
