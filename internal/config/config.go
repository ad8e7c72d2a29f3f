// Package config loads runtime settings: defaults, then an optional YAML
// file, then IDSM_-prefixed environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"idsm/internal/blob"
	"idsm/internal/inputs"
	"idsm/internal/joblog"
	"idsm/internal/logging"
	"idsm/internal/model"
	"idsm/internal/posterior"
	"idsm/internal/sampler"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IDSM_"

const redacted = "REDACTED"

// Settings is the complete runtime configuration.
type Settings struct {
	LogLevel   string        `yaml:"log_level" env:"LOG_LEVEL"`
	Model      model.Config  `yaml:"model" envPrefix:"MODEL_"`
	Sampler    Sampler       `yaml:"sampler" envPrefix:"SAMPLER_"`
	Storage    Storage       `yaml:"storage"`
	Batch      Batch         `yaml:"batch" envPrefix:"BATCH_"`
	Simulation inputs.Design `yaml:"simulation" envPrefix:"SIM_"`
}

// Sampler configures chain length and fan-out.
type Sampler struct {
	sampler.RunSpec `yaml:",inline"`
	Chains          int      `yaml:"chains" env:"CHAINS"`
	TestRun         bool     `yaml:"test_run" env:"TEST_RUN"`
	Engine          string   `yaml:"engine" env:"ENGINE"`
	Monitors        []string `yaml:"monitors" env:"MONITORS" envSeparator:","`
}

// Storage selects the artifact store and job log backends.
type Storage struct {
	Blob   blob.Options   `yaml:"blob" envPrefix:"BLOB_"`
	JobLog joblog.Options `yaml:"joblog" envPrefix:"JOBLOG_"`
}

// Batch configures the seed-pair worker.
type Batch struct {
	Workers     int      `yaml:"workers" env:"WORKERS"`
	MaxAttempts int      `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	QueueSize   int      `yaml:"queue_size" env:"QUEUE_SIZE"`
	Formats     []string `yaml:"formats" env:"FORMATS" envSeparator:","`
	// Inputs is a bundle file shared by every origin seed; empty means each
	// origin seed simulates its own dataset.
	Inputs string `yaml:"inputs" env:"INPUTS"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		LogLevel: "info",
		Model:    model.Config{TelemetryArea: 1},
		Sampler: Sampler{
			RunSpec: sampler.RunSpec{Iter: 5000, Burnin: 1000, Thin: 5},
			Chains:  3,
			Engine:  "metropolis",
		},
		Storage: Storage{
			Blob:   blob.Options{Driver: blob.DriverFilesystem},
			JobLog: joblog.Options{Driver: joblog.DriverSQLite},
		},
		Batch: Batch{
			Workers:     1,
			MaxAttempts: 3,
			QueueSize:   64,
		},
		Simulation: inputs.DefaultDesign(),
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := decode(f, &s); err != nil {
			return Settings{}, err
		}
	}
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func decode(r io.Reader, s *Settings) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate rejects settings that cannot drive a run.
func (s Settings) Validate() error {
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if !s.Sampler.TestRun {
		if err := s.Sampler.RunSpec.Validate(); err != nil {
			return err
		}
	}
	if s.Sampler.Chains < 1 {
		return fmt.Errorf("sampler.chains must be positive, got %d", s.Sampler.Chains)
	}
	if s.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive, got %d", s.Batch.Workers)
	}
	if s.Batch.MaxAttempts < 1 {
		return fmt.Errorf("batch.max_attempts must be positive, got %d", s.Batch.MaxAttempts)
	}
	if s.Batch.QueueSize < 1 {
		return fmt.Errorf("batch.queue_size must be positive, got %d", s.Batch.QueueSize)
	}
	if _, err := s.Batch.ArchiveFormats(); err != nil {
		return err
	}
	if s.Batch.Inputs == "" {
		if err := s.Simulation.Validate(s.Model); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveFormats resolves the configured formats; empty means every archive.
func (b Batch) ArchiveFormats() ([]posterior.Format, error) {
	if len(b.Formats) == 0 {
		return append([]posterior.Format(nil), posterior.ArchiveFormats...), nil
	}
	known := make(map[posterior.Format]bool)
	for _, f := range posterior.ArchiveFormats {
		known[f] = true
	}
	out := make([]posterior.Format, 0, len(b.Formats))
	for _, f := range b.Formats {
		if !known[posterior.Format(f)] {
			return nil, fmt.Errorf("unknown archive format %q", f)
		}
		out = append(out, posterior.Format(f))
	}
	return out, nil
}

// YAML renders s for display with credentials masked.
func (s Settings) YAML() ([]byte, error) {
	if s.Storage.Blob.S3.SecretAccessKey != "" {
		s.Storage.Blob.S3.SecretAccessKey = redacted
	}
	if s.Storage.Blob.S3.SessionToken != "" {
		s.Storage.Blob.S3.SessionToken = redacted
	}
	buf := &bytes.Buffer{}
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
