package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl files

	// Exactly one execution mode: a one-shot run for a single event file,
	// or a long-lived server accepting webhook events.
	EventPath  string
	ListenAddr string

	LogFormat string
	LogLevel  string
	Workers   int

	ArtifactDir     string
	NotifyURL       string
	NotifyNamespace string
	WorkDir         string
}

// NewConfig validates the raw configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.EventPath == "" && cfg.ListenAddr == "" {
		return nil, errors.New("either an event file or a listen address must be configured")
	}
	if cfg.EventPath != "" && cfg.ListenAddr != "" {
		return nil, errors.New("event file and listen address are mutually exclusive")
	}
	return &cfg, nil
}
