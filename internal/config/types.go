package config

// Config is the whole tgmon configuration file.
//
// The file may be JSON or YAML; YAML is normalized and decoded through the
// same strict JSON decoder. All durations are Go duration strings
// (e.g. "200ms", "10s").
type Config struct {
	Storage   StorageConfig    `json:"storage"`
	Logging   LoggingConfig    `json:"logging"`
	Telegram  TelegramConfig   `json:"telegram,omitempty"`
	Monitor   MonitorConfig    `json:"monitor,omitempty"`
	Heartbeat *HeartbeatConfig `json:"heartbeat,omitempty"`
}

// StorageConfig locates the sqlite repository.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // trace|debug|info|warn|error
	Console *bool         `json:"console,omitempty"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TelegramConfig tunes the transport adapter.
type TelegramConfig struct {
	// PollTimeout is the long-poll timeout. Default "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
	// MessageCache bounds the recent-message cache that serves reply
	// lookups. Default 2048 entries.
	MessageCache int `json:"message_cache,omitempty"`
}

// MonitorConfig tunes the forwarding pipeline.
type MonitorConfig struct {
	// SendMinDelay / SendMaxDelay bound the randomized gap between two
	// sends on the aggregator connection. Defaults "200ms" / "300ms".
	SendMinDelay string `json:"send_min_delay,omitempty"`
	SendMaxDelay string `json:"send_max_delay,omitempty"`
	// ReplyLookupPerSec caps replied-to message fetches per account.
	// Lookups over the cap are treated as "no reply". Default 5.
	ReplyLookupPerSec int `json:"reply_lookup_per_sec,omitempty"`
}

// HeartbeatConfig enables a cron-scheduled fleet status log line.
type HeartbeatConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec; default "0 * * * *"
}

// ConsoleEnabled applies the default (on) when the field is omitted.
func (l LoggingConfig) ConsoleEnabled() bool {
	if l.Console == nil {
		return true
	}
	return *l.Console
}
