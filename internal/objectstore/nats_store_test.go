// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/tts-helper/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer starts an in-process NATS server with JetStream enabled.
func startTestServer(t *testing.T) (*server.Server, nats.JetStreamContext) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return natsServer, jetstreamContext
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)

	store, err := objectstore.New(jetstreamContext, "SPOKEN_AUDIO")
	require.NoError(t, err)
	assert.Equal(t, "SPOKEN_AUDIO", store.Bucket())

	ctx := context.Background()
	key := "clip.wav"
	audio := []byte("RIFF....WAVEfmt ")

	require.NoError(t, store.Upload(ctx, key, audio, map[string]string{"voice": "af_bella"}))

	downloaded, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, audio, downloaded)

	metadata, err := store.Metadata(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "af_bella", metadata["voice"])
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)
	ctx := context.Background()

	first, err := objectstore.New(jetstreamContext, "SPOKEN_AUDIO")
	require.NoError(t, err)
	require.NoError(t, first.Upload(ctx, "kept.wav", []byte("audio"), nil))

	second, err := objectstore.New(jetstreamContext, "SPOKEN_AUDIO")
	require.NoError(t, err)

	downloaded, err := second.Download(ctx, "kept.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), downloaded)
}

func TestNatsObjectStore_DownloadMissing(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)

	store, err := objectstore.New(jetstreamContext, "SPOKEN_AUDIO")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "missing.wav")
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)

	_, err = store.Metadata(context.Background(), "missing.wav")
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}
