// main package for the tts-client, a terminal client for a running tts-helper.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-helper/internal/archive"
	"github.com/book-expert/tts-helper/internal/client"
	"github.com/book-expert/tts-helper/internal/config"
	"github.com/book-expert/tts-helper/internal/objectstore"
	"github.com/book-expert/tts-helper/internal/paths"
	"github.com/book-expert/tts-helper/internal/text"
	"github.com/nats-io/nats.go"
)

// Flag descriptions.
const (
	flagTextDesc    = "Text to convert to speech"
	flagFileDesc    = "File containing the text to convert to speech"
	flagOutputDesc  = "Output file path (.wav)"
	flagVoiceDesc   = "Voice ID (defaults to the helper's default voice)"
	flagSpeedDesc   = "Speech speed between 0.5 and 2.0 (defaults to 1.0)"
	flagConfigDesc  = "Path to the helper's config.json"
	flagURLDesc     = "Helper base URL (overrides the port from config.json)"
	flagRawDesc     = "Send the text as is, without ligature and whitespace cleanup"
	flagHealthDesc  = "Check helper health and exit"
	flagVoicesDesc  = "List available voices and exit"
	flagTimeoutDesc = "Per-request timeout"
	flagFetchDesc   = "Download an archived clip by object key instead of generating one"
)

// Flag names.
const (
	flagText    = "text"
	flagFile    = "file"
	flagOutput  = "output"
	flagVoice   = "voice"
	flagSpeed   = "speed"
	flagConfig  = "config"
	flagURL     = "url"
	flagRaw     = "raw"
	flagHealth  = "health"
	flagVoices  = "voices"
	flagTimeout = "timeout"
	flagFetch   = "fetch"
)

// Error and log messages.
const (
	errEitherTextOrFile    = "either --text or --file must be provided"
	errCannotSpecifyBoth   = "cannot specify both --text and --file"
	errFmtHelperNotStarted = "TTS helper has not been started yet (no config at %s): %w"
	errFmtFailedToReadText = "failed to read text from %s: %w"
	logServiceHealthy      = "TTS helper is healthy: model %s, uptime %s, %d requests served\n"
	logServiceWarming      = "TTS helper is warming up: model %s not loaded yet\n"
	logVoice               = "%-12s %-14s %s\n"
	logGenerated           = "Generated: %s (%s, %s of audio in %s, RTF %.2fx)\n"
	logCleanedText         = "Repaired broken ligatures in input text"
	logFetched             = "Fetched: %s (%s, voice %s, %ss of audio) from bucket %s\n"
)

// File names and defaults.
const (
	logFileName       = "tts-client.log"
	defaultOutputFile = "output.wav"
	defaultTimeout    = 5 * time.Minute
	outputPermissions = 0o600
)

const natsClientName = "tts-client"

var (
	errEitherTextOrFileProvided = errors.New(errEitherTextOrFile)
	errBothTextAndFile          = errors.New(errCannotSpecifyBoth)
	errArchiveNotConfigured     = errors.New("audio archive is not configured (set [archive] nats_url in settings.toml)")
)

// clipStore reads archived clips.
type clipStore interface {
	Bucket() string
	Download(ctx context.Context, key string) ([]byte, error)
	Metadata(ctx context.Context, key string) (map[string]string, error)
}

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text    string
	file    string
	output  string
	voice   string
	speed   float64
	config  string
	url     string
	raw     bool
	health  bool
	voices  bool
	timeout time.Duration
	fetch   string
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	settings := loadSettings(flags.config)

	log, err := setupLogger(settings.Service.LogDir)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	if flags.fetch != "" {
		return handleFetch(ctx, settings.Archive, log, flags, stdout)
	}

	baseURL, secret, err := resolveHelper(flags)
	if err != nil {
		return err
	}

	log.Info("TTS client using helper at %s", baseURL)

	helper := client.NewHTTPClient(baseURL, flags.timeout).WithSecret(secret)

	switch {
	case flags.health:
		return handleHealthCheck(ctx, helper, log, stdout)
	case flags.voices:
		return handleVoices(ctx, helper, stdout)
	default:
		return handleSpeak(ctx, helper, log, flags, stdout)
	}
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("tts-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flagSet.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.Float64Var(&flags.speed, flagSpeed, 0, flagSpeedDesc)
	flagSet.StringVar(&flags.config, flagConfig, config.DefaultPath(), flagConfigDesc)
	flagSet.StringVar(&flags.url, flagURL, "", flagURLDesc)
	flagSet.BoolVar(&flags.raw, flagRaw, false, flagRawDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.BoolVar(&flags.voices, flagVoices, false, flagVoicesDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flagSet.StringVar(&flags.fetch, flagFetch, "", flagFetchDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateFlags checks required and conflicting arguments.
func validateFlags(flags appFlags) error {
	if flags.health || flags.voices || flags.fetch != "" {
		return nil
	}

	if flags.text == "" && flags.file == "" {
		return errEitherTextOrFileProvided
	}

	if flags.text != "" && flags.file != "" {
		return errBothTextAndFile
	}

	return nil
}

// resolveHelper finds the helper's URL and secret from the flags or the
// config file the helper wrote at startup.
func resolveHelper(flags appFlags) (string, string, error) {
	cfg, err := config.NewStore(flags.config).Read()
	if err != nil {
		if flags.url != "" {
			return flags.url, "", nil
		}

		return "", "", fmt.Errorf(errFmtHelperNotStarted, flags.config, err)
	}

	if flags.url != "" {
		return flags.url, cfg.Secret, nil
	}

	return cfg.BaseURL(), cfg.Secret, nil
}

// loadSettings reads the helper's settings.toml, falling back to defaults
// when it is unreadable; the client only needs the log and archive sections.
func loadSettings(configPath string) *config.Settings {
	settings, err := config.LoadSettings(filepath.Dir(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: using default settings: %v\n", err)

		return config.DefaultSettings(filepath.Dir(configPath))
	}

	return settings
}

func setupLogger(logDir string) (*logger.Logger, error) {
	err := paths.EnsureDir(logDir)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return log, nil
}

// handleHealthCheck performs a helper health check and prints the result.
func handleHealthCheck(ctx context.Context, helper *client.HTTPClient, log *logger.Logger, stdout io.Writer) error {
	health, err := helper.Health(ctx)
	if errors.Is(err, client.ErrWarming) {
		fmt.Fprintf(stdout, logServiceWarming, health.Model)

		return err
	}

	if err != nil {
		log.Error("Health check failed: %v", err)

		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Fprintf(stdout, logServiceHealthy, health.Model, paths.FormatDuration(health.UptimeSeconds), health.RequestsServed)

	return nil
}

func handleVoices(ctx context.Context, helper *client.HTTPClient, stdout io.Writer) error {
	voices, err := helper.Voices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}

	for _, voice := range voices {
		fmt.Fprintf(stdout, logVoice, voice.ID, voice.Name, voice.Language)
	}

	return nil
}

// handleSpeak converts the text from the flags and writes the WAV file.
func handleSpeak(
	ctx context.Context,
	helper *client.HTTPClient,
	log *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	input, err := loadText(flags)
	if err != nil {
		return err
	}

	if !flags.raw {
		input = prepareText(input, log)
	}

	speech, err := helper.Speak(ctx, client.SpeakRequest{
		Text:  input,
		Voice: flags.voice,
		Speed: flags.speed,
	})
	if err != nil {
		log.Error("Failed to generate speech: %v", err)

		return fmt.Errorf("failed to generate speech: %w", err)
	}

	outputPath, err := paths.Abs(flags.output)
	if err != nil {
		return err
	}

	err = os.WriteFile(outputPath, speech.Audio, outputPermissions)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	log.Info("Wrote %d bytes of audio to %s", len(speech.Audio), outputPath)
	fmt.Fprintf(stdout, logGenerated, outputPath, paths.FormatFileSize(int64(len(speech.Audio))),
		paths.FormatDuration(speech.Duration), paths.FormatDuration(speech.GenerationTime), speech.RealTimeFactor)

	return nil
}

func loadText(flags appFlags) (string, error) {
	if flags.text != "" {
		return flags.text, nil
	}

	data, err := os.ReadFile(flags.file)
	if err != nil {
		return "", fmt.Errorf(errFmtFailedToReadText, flags.file, err)
	}

	return string(data), nil
}

// prepareText repairs text copied from PDFs and collapses layout whitespace.
func prepareText(input string, log *logger.Logger) string {
	cleaner := text.NewCleaner()

	if cleaner.HasLigatureIssues(input) {
		log.Info(logCleanedText)
	}

	return cleaner.Clean(input)
}

// handleFetch downloads an archived clip from the NATS object store.
func handleFetch(
	ctx context.Context,
	settings config.ArchiveSettings,
	log *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	if settings.NATSURL == "" {
		return errArchiveNotConfigured
	}

	natsConnection, err := nats.Connect(settings.NATSURL, nats.Name(natsClientName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", settings.NATSURL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, settings.Bucket)
	if err != nil {
		return fmt.Errorf("failed to open audio archive: %w", err)
	}

	return fetchClip(ctx, store, log, flags, stdout)
}

func fetchClip(ctx context.Context, store clipStore, log *logger.Logger, flags appFlags, stdout io.Writer) error {
	metadata, err := store.Metadata(ctx, flags.fetch)
	if err != nil {
		return fmt.Errorf("failed to look up clip: %w", err)
	}

	audio, err := store.Download(ctx, flags.fetch)
	if err != nil {
		return fmt.Errorf("failed to download clip: %w", err)
	}

	outputPath, err := paths.Abs(flags.output)
	if err != nil {
		return err
	}

	err = os.WriteFile(outputPath, audio, outputPermissions)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	log.Info("Fetched %s from bucket %s into %s", flags.fetch, store.Bucket(), outputPath)
	fmt.Fprintf(stdout, logFetched, outputPath, paths.FormatFileSize(int64(len(audio))),
		metadata[archive.MetaVoice], metadata[archive.MetaDuration], store.Bucket())

	return nil
}
