// Package archive keeps a copy of generated speech in an object store and
// announces each archived clip on a NATS subject.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-helper/internal/core"
	"github.com/google/uuid"
)

const audioKeySuffix = ".wav"

// Metadata keys stored with each archived clip.
const (
	MetaVoice      = "voice"
	MetaSpeed      = "speed"
	MetaDuration   = "duration"
	MetaSampleRate = "sample_rate"
	MetaFormat     = "format"
	MetaCharacters = "characters"
)

// ErrNoAudio is returned when a record carries no audio.
var ErrNoAudio = errors.New("archive record has no audio")

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Archiver uploads clips and publishes an AudioChunkCreatedEvent for each.
// All clips archived by one Archiver share a workflow ID.
type Archiver struct {
	store      core.ObjectStore
	publisher  Publisher
	subject    string
	workflowID string
	log        *logger.Logger
}

// New creates an Archiver. A nil publisher archives without announcing.
func New(store core.ObjectStore, publisher Publisher, subject string, log *logger.Logger) *Archiver {
	return &Archiver{
		store:      store,
		publisher:  publisher,
		subject:    subject,
		workflowID: uuid.NewString(),
		log:        log,
	}
}

// WorkflowID returns the ID stamped on every published event.
func (a *Archiver) WorkflowID() string {
	return a.workflowID
}

// Archive implements core.Archiver. It returns the object key of the clip.
func (a *Archiver) Archive(ctx context.Context, record core.ArchiveRecord) (string, error) {
	if record.Audio == nil || len(record.Audio.Data) == 0 {
		return "", ErrNoAudio
	}

	audioKey := uuid.NewString() + audioKeySuffix

	err := a.store.Upload(ctx, audioKey, record.Audio.Data, recordMetadata(record))
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	if a.publisher == nil {
		return audioKey, nil
	}

	event := &events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: a.workflowID,
			EventID:    uuid.NewString(),
		},
		AudioKey: audioKey,
	}

	err = a.publish(event)
	if err != nil {
		return audioKey, err
	}

	a.log.Info("Published %s for %s", a.subject, audioKey)

	return audioKey, nil
}

func (a *Archiver) publish(event *events.AudioChunkCreatedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audio chunk event: %w", err)
	}

	err = a.publisher.Publish(a.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish audio chunk event on '%s': %w", a.subject, err)
	}

	return nil
}

func recordMetadata(record core.ArchiveRecord) map[string]string {
	return map[string]string{
		MetaVoice:      record.Voice,
		MetaSpeed:      strconv.FormatFloat(record.Speed, 'f', -1, 64),
		MetaDuration:   strconv.FormatFloat(record.Audio.Duration, 'f', -1, 64),
		MetaSampleRate: strconv.Itoa(record.Audio.SampleRate),
		MetaFormat:     record.Audio.Format,
		MetaCharacters: strconv.Itoa(len([]rune(record.Text))),
	}
}
