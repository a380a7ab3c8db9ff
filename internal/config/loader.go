package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mtoso/shadowline/internal/session"
)

// maxPollInterval is the contract ceiling for the embedded-video position
// poll. Matches pkg/playback/embedvideo.
const maxPollInterval = 200 * time.Millisecond

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Lessons
	if cfg.Lessons.Source != "" && !cfg.Lessons.Source.IsValid() {
		errs = append(errs, fmt.Errorf("lessons.source %q is invalid; valid values: file, postgres", cfg.Lessons.Source))
	}
	if cfg.Lessons.Source == LessonSourceFile && cfg.Lessons.Dir == "" {
		errs = append(errs, errors.New("lessons.dir is required when lessons.source is file"))
	}
	if cfg.Lessons.Source == LessonSourcePostgres && cfg.Lessons.PostgresDSN == "" {
		errs = append(errs, errors.New("lessons.postgres_dsn is required when lessons.source is postgres"))
	}

	// Playback
	if cfg.Playback.Backend != "" && !cfg.Playback.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("playback.backend %q is invalid; valid values: file-audio, embedded-video", cfg.Playback.Backend))
	}
	if ms := cfg.Playback.PollIntervalMS; ms != 0 {
		d := time.Duration(ms) * time.Millisecond
		if d < 0 || d > maxPollInterval {
			slog.Warn("playback.poll_interval_ms outside (0, 200]; the backend default applies",
				"poll_interval_ms", ms,
			)
		}
	}

	// Recognizer
	if cfg.Recognizer.Mode != "" && !cfg.Recognizer.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("recognizer.mode %q is invalid; valid values: remote, native", cfg.Recognizer.Mode))
	}
	if cfg.Recognizer.Mode == RecognizerRemote && cfg.Recognizer.URL == "" {
		errs = append(errs, errors.New("recognizer.url is required when recognizer.mode is remote"))
	}
	if cfg.Recognizer.Mode == RecognizerNative && cfg.Recognizer.ModelPath == "" {
		errs = append(errs, errors.New("recognizer.model_path is required when recognizer.mode is native"))
	}
	if cfg.Recognizer.Mode == RecognizerNative && cfg.Recognizer.Model != "" {
		slog.Warn("recognizer.model only applies to remote mode; native mode loads model_path",
			"model", cfg.Recognizer.Model,
		)
	}

	// Cross-validate scoring against server. Empty base_url is only coherent
	// when this process embeds the scoring service itself.
	if cfg.Scoring.BaseURL == "" && cfg.Server.ListenAddr == "" {
		slog.Warn("scoring.base_url is empty and no embedded scoring service is configured; attempts cannot be scored")
	}
	if cfg.Server.ListenAddr != "" && cfg.Recognizer.Mode == "" {
		errs = append(errs, errors.New("recognizer.mode is required when server.listen_addr enables the scoring service"))
	}

	// Session key bindings
	for key, action := range cfg.Session.Keys {
		if key == "" {
			errs = append(errs, errors.New("session.keys contains an empty key name"))
			continue
		}
		if !session.Action(action).IsValid() {
			errs = append(errs, fmt.Errorf("session.keys[%q] action %q is invalid; valid values: toggle-play, record, stop-save, cancel, next, prev, replay", key, action))
		}
	}

	return errors.Join(errs...)
}

// Keymap builds the session keymap: the defaults overlaid with any
// configured overrides. Call only after [Validate] has accepted cfg.
func (s SessionConfig) Keymap() *session.Keymap {
	km := session.DefaultKeymap()
	for key, action := range s.Keys {
		km.Bind(key, session.Action(action))
	}
	return km
}
