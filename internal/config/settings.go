package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// SettingsFileName is the optional TOML file read from the config directory.
const SettingsFileName = "settings.toml"

const (
	defaultModelName       = "kokoro-82m"
	defaultReadyMarker     = "Model loaded, ready for requests"
	defaultWarmupSeconds   = 60
	defaultGraceSeconds    = 2
	defaultEspeakDataPath  = "/opt/homebrew/opt/espeak-ng/share/espeak-ng-data"
	defaultArchiveBucket   = "SPOKEN_AUDIO"
	defaultArchiveSubject  = "audio.chunk.created"
	defaultLogsDirName     = "logs"
	espeakDataPathVariable = "ESPEAK_DATA_PATH"
)

// ServiceSettings holds the gateway settings.
type ServiceSettings struct {
	ModelName     string `toml:"model_name"`
	LogDir        string `toml:"log_dir"`
	RequireSecret bool   `toml:"require_secret"`
}

// WorkerSettings holds the worker supervision settings.
type WorkerSettings struct {
	ReadyMarker          string `toml:"ready_marker"`
	WarmupTimeoutSeconds int    `toml:"warmup_timeout_seconds"`
	ShutdownGraceSeconds int    `toml:"shutdown_grace_seconds"`
	EspeakDataPath       string `toml:"espeak_data_path"`
}

// ArchiveSettings configures the optional NATS audio archive. An empty URL
// disables it.
type ArchiveSettings struct {
	NATSURL string `toml:"nats_url"`
	Bucket  string `toml:"bucket"`
	Subject string `toml:"subject"`
}

// Settings is the root settings structure.
type Settings struct {
	Service ServiceSettings `toml:"service"`
	Worker  WorkerSettings  `toml:"worker"`
	Archive ArchiveSettings `toml:"archive"`
}

// DefaultSettings returns the settings used when no settings file exists.
func DefaultSettings(baseDir string) *Settings {
	return &Settings{
		Service: ServiceSettings{
			ModelName: defaultModelName,
			LogDir:    filepath.Join(baseDir, defaultLogsDirName),
		},
		Worker: WorkerSettings{
			ReadyMarker:          defaultReadyMarker,
			WarmupTimeoutSeconds: defaultWarmupSeconds,
			ShutdownGraceSeconds: defaultGraceSeconds,
			EspeakDataPath:       defaultEspeakDataPath,
		},
		Archive: ArchiveSettings{
			Bucket:  defaultArchiveBucket,
			Subject: defaultArchiveSubject,
		},
	}
}

// LoadSettings reads settings.toml from baseDir on top of the defaults.
// A missing file yields the defaults; a malformed file is an error.
func LoadSettings(baseDir string) (*Settings, error) {
	settings := DefaultSettings(baseDir)
	path := filepath.Join(baseDir, SettingsFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}

		return nil, fmt.Errorf("failed to read settings '%s': %w", path, err)
	}

	err = ParseSettings(data, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings '%s': %w", path, err)
	}

	return settings, nil
}

// ParseSettings decodes TOML data into settings, keeping existing values for
// keys the data does not set.
func ParseSettings(data []byte, settings *Settings) error {
	err := toml.Unmarshal(data, settings)
	if err != nil {
		return fmt.Errorf("failed to unmarshal TOML: %w", err)
	}

	return nil
}

// WarmupTimeout returns the warmup bound as a duration.
func (w WorkerSettings) WarmupTimeout() time.Duration {
	return time.Duration(w.WarmupTimeoutSeconds) * time.Second
}

// ShutdownGrace returns the shutdown grace period as a duration.
func (w WorkerSettings) ShutdownGrace() time.Duration {
	return time.Duration(w.ShutdownGraceSeconds) * time.Second
}

// Environment returns the extra environment passed to the worker.
func (w WorkerSettings) Environment() []string {
	if w.EspeakDataPath == "" {
		return nil
	}

	return []string{espeakDataPathVariable + "=" + w.EspeakDataPath}
}
