// Package core defines the shared types and interfaces for the TTS helper.
package core

import "context"

// ObjectStore is the write side of a key-value blob store.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, metadata map[string]string) error
}

// AudioData is one fully synthesized clip returned by the worker.
type AudioData struct {
	Data       []byte
	Duration   float64
	SampleRate int
	Format     string
}

// SpeechGenerator turns text into audio through the supervised worker.
// Ready reports a snapshot of the worker state and never blocks.
type SpeechGenerator interface {
	Generate(ctx context.Context, text, voice string, speed float64) (*AudioData, error)
	Ready() bool
}

// ArchiveRecord describes a generated clip handed to an Archiver.
type ArchiveRecord struct {
	Audio *AudioData
	Text  string
	Voice string
	Speed float64
}

// Archiver keeps a copy of generated audio somewhere outside the helper.
type Archiver interface {
	Archive(ctx context.Context, record ArchiveRecord) (string, error)
}
