// Package config provides the persisted connection configuration and the
// optional service settings for the TTS helper.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/book-expert/tts-helper/internal/paths"
	"github.com/google/uuid"
)

const (
	// FileName is the name of the config file inside the application directory.
	FileName = "config.json"

	// DefaultVoice is the voice used when a request does not name one.
	DefaultVoice = "af_bella"

	portRangeStart = 8000
	portRangeSize  = 1000

	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Engine and worker script locations, relative to the executable directory
// (bundled), the working directory (development tree), or absolute (system).
const (
	bundledEngineRel     = "../Resources/python-env/bin/python3"
	bundledEngineFlatRel = "python-env/bin/python3"
	devEngineRel         = "worker/python-env/bin/python3"
	systemEngine         = "/usr/bin/python3"
	engineBinaryName     = "python3"

	bundledScriptRel     = "../Resources/tts_worker.py"
	bundledScriptFlatRel = "tts_worker.py"
	devScriptRel         = "worker/tts_worker.py"
)

// ErrConfigNotFound is returned by Store.Read when no config file exists.
var ErrConfigNotFound = errors.New("config file not found")

// Config is the connection configuration shared with clients. It is loaded
// once at startup and treated as read-only afterwards.
type Config struct {
	Port             int    `json:"port"`
	Secret           string `json:"secret"`
	EnginePath       string `json:"python_path"`
	WorkerScriptPath string `json:"worker_script_path"`
	DefaultVoice     string `json:"default_voice"`
}

// Addr returns the loopback address the gateway listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

// BaseURL returns the URL clients use to reach the gateway.
func (c *Config) BaseURL() string {
	return "http://" + c.Addr()
}

// Store reads and writes the config file at a fixed path.
type Store struct {
	path          string
	executableDir string
	workingDir    string
}

// DefaultPath returns the platform config file location.
func DefaultPath() string {
	return filepath.Join(paths.AppSupportDir(), FileName)
}

// NewStore creates a Store for path. Engine and script defaults are resolved
// relative to the running executable and the working directory.
func NewStore(path string) *Store {
	executableDir := ""

	executable, err := os.Executable()
	if err == nil {
		executableDir = filepath.Dir(executable)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		workingDir = "."
	}

	return NewStoreWithDirs(path, executableDir, workingDir)
}

// NewStoreWithDirs creates a Store that resolves bundled and development
// paths against the given directories. It exists primarily for tests.
func NewStoreWithDirs(path, executableDir, workingDir string) *Store {
	return &Store{
		path:          path,
		executableDir: executableDir,
		workingDir:    workingDir,
	}
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted config. A missing or unparseable file is
// replaced by freshly generated defaults, which are saved before returning.
func (s *Store) Load() (*Config, error) {
	cfg, err := s.Read()
	if err == nil {
		return cfg, nil
	}

	cfg = s.Defaults()

	saveErr := s.Save(cfg)
	if saveErr != nil {
		return nil, fmt.Errorf("failed to create default config (previous load error: %v): %w", err, saveErr)
	}

	return cfg, nil
}

// Read returns the persisted config without creating one.
func (s *Store) Read() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, s.path)
		}

		return nil, fmt.Errorf("failed to read config '%s': %w", s.path, err)
	}

	var cfg Config

	err = json.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config '%s': %w", s.path, err)
	}

	return &cfg, nil
}

// Save writes cfg to the config file, creating its directory if needed.
func (s *Store) Save(cfg *Config) error {
	err := os.MkdirAll(filepath.Dir(s.path), dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(s.path, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write config '%s': %w", s.path, err)
	}

	return nil
}

// Defaults synthesizes a new config with a random port, a fresh secret and
// the best engine and script paths found on this machine.
func (s *Store) Defaults() *Config {
	return &Config{
		Port:             portRangeStart + rand.IntN(portRangeSize),
		Secret:           uuid.NewString(),
		EnginePath:       s.findEnginePath(),
		WorkerScriptPath: s.findWorkerScriptPath(),
		DefaultVoice:     DefaultVoice,
	}
}

func (s *Store) findEnginePath() string {
	onPath, err := exec.LookPath(engineBinaryName)
	if err != nil {
		onPath = ""
	}

	return paths.FirstExisting(
		s.fromExecutable(bundledEngineRel),
		s.fromExecutable(bundledEngineFlatRel),
		filepath.Join(s.workingDir, devEngineRel),
		onPath,
		systemEngine,
	)
}

func (s *Store) findWorkerScriptPath() string {
	return paths.FirstExisting(
		s.fromExecutable(bundledScriptRel),
		s.fromExecutable(bundledScriptFlatRel),
		filepath.Join(s.workingDir, devScriptRel),
	)
}

func (s *Store) fromExecutable(rel string) string {
	if s.executableDir == "" {
		return ""
	}

	return filepath.Join(s.executableDir, rel)
}
