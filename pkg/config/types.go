package config

import (
	"fmt"
	"strings"
	"time"

	logx "github.com/eclipse-volttron/volttron-testing/pkg/logx"
)

// Config controls the schedule harness.
//
// All durations are Go duration strings (e.g. "50ms", "5s").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "100ms"
//   - verify_timeout: "5s"
//   - join_timeout: "1s"
//   - failure_warn_every: "5s"
//   - preview_runs: 3 (use -1 to disable next-run previews)
//   - timezone: Local
type Config struct {
	PollInterval  string `json:"poll_interval,omitempty"`
	VerifyTimeout string `json:"verify_timeout,omitempty"`
	JoinTimeout   string `json:"join_timeout,omitempty"`

	// FailureWarnEvery throttles "callback failed" warnings.
	FailureWarnEvery string `json:"failure_warn_every,omitempty"`

	// Timezone (IANA, e.g. "Europe/Berlin") used only to render cron previews.
	Timezone    string `json:"timezone,omitempty"`
	PreviewRuns int    `json:"preview_runs,omitempty"`

	Logging logx.Config `json:"logging"`
}

const (
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultVerifyTimeout    = 5 * time.Second
	DefaultJoinTimeout      = time.Second
	DefaultFailureWarnEvery = 5 * time.Second
	DefaultPreviewRuns      = 3
)

func Default() Config {
	return Config{
		PollInterval:     DefaultPollInterval.String(),
		VerifyTimeout:    DefaultVerifyTimeout.String(),
		JoinTimeout:      DefaultJoinTimeout.String(),
		FailureWarnEvery: DefaultFailureWarnEvery.String(),
		PreviewRuns:      DefaultPreviewRuns,
		Logging:          logx.Config{Level: "info"},
	}
}

// Settings is the parsed form of Config.
type Settings struct {
	PollInterval     time.Duration
	VerifyTimeout    time.Duration
	JoinTimeout      time.Duration
	FailureWarnEvery time.Duration
	Location         *time.Location
	PreviewRuns      int
	Logging          logx.Config
}

// Resolve parses durations and the timezone, applying defaults for zero values.
func (c Config) Resolve() (Settings, error) {
	var (
		s   Settings
		err error
	)
	if s.PollInterval, err = ParseDurationOrDefault("poll_interval", c.PollInterval, DefaultPollInterval); err != nil {
		return Settings{}, err
	}
	if s.VerifyTimeout, err = ParseDurationOrDefault("verify_timeout", c.VerifyTimeout, DefaultVerifyTimeout); err != nil {
		return Settings{}, err
	}
	if s.JoinTimeout, err = ParseDurationOrDefault("join_timeout", c.JoinTimeout, DefaultJoinTimeout); err != nil {
		return Settings{}, err
	}
	if s.FailureWarnEvery, err = ParseDurationOrDefault("failure_warn_every", c.FailureWarnEvery, DefaultFailureWarnEvery); err != nil {
		return Settings{}, err
	}

	s.Location = time.Local
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Settings{}, fmt.Errorf("timezone: %w", err)
		}
		s.Location = loc
	}

	switch {
	case c.PreviewRuns < 0:
		s.PreviewRuns = 0
	case c.PreviewRuns == 0:
		s.PreviewRuns = DefaultPreviewRuns
	default:
		s.PreviewRuns = c.PreviewRuns
	}

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		return Settings{}, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	s.Logging = c.Logging
	return s, nil
}
