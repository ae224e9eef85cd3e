package gateway_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/book-expert/tts-helper/internal/api"
	"github.com/book-expert/tts-helper/internal/gateway"
	"github.com/book-expert/tts-helper/internal/protocol"
	"github.com/book-expert/tts-helper/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The test binary doubles as a worker subprocess when this variable is set.
const workerModeEnv = "TTS_HELPER_GATEWAY_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(workerModeEnv) != "" {
		os.Exit(runStubWorker())
	}

	os.Exit(m.Run())
}

// runStubWorker warms up after a short delay and answers every request with
// the same short clip.
func runStubWorker() int {
	fmt.Fprintln(os.Stderr, "[INFO] Loading model (first time)...")
	time.Sleep(100 * time.Millisecond)
	fmt.Fprintln(os.Stderr, "[INFO] "+worker.DefaultReadyMarker)

	for {
		var request protocol.GenerateRequest

		err := protocol.ReadMessage(os.Stdin, &request)
		if err != nil {
			return 0
		}

		err = protocol.WriteFrame(os.Stdout,
			[]byte(`{"audio_base64":"AAA=","duration":0.5,"sample_rate":24000,"format":"wav"}`))
		if err != nil {
			return 1
		}
	}
}

func TestEndToEnd_SpeakThroughSupervisor(t *testing.T) {
	t.Parallel()

	executable, err := os.Executable()
	require.NoError(t, err)

	log := newTestLogger(t)
	supervisor := worker.New(worker.Options{
		Launcher: worker.ExecLauncher{
			Path: executable,
			Env:  []string{workerModeEnv + "=1"},
		},
		ShutdownGrace: 5 * time.Second,
	}, log)
	t.Cleanup(supervisor.Shutdown)

	server := gateway.New(testConfig(), gateway.Options{}, supervisor, log)
	handler := server.Handler()

	require.NoError(t, supervisor.Start(context.Background()))

	recorder := doRequest(t, handler, http.MethodGet, api.PathHealth, "")
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code, "health reports warming before the marker")

	require.NoError(t, supervisor.WaitUntilReady(context.Background(), 10*time.Second))

	recorder = doRequest(t, handler, http.MethodGet, api.PathHealth, "")
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, handler, http.MethodPost, api.PathSpeak, `{"text":"Hi"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, []byte{0x00, 0x00}, recorder.Body.Bytes())
	assert.Equal(t, "0.5", recorder.Header().Get(api.HeaderAudioDuration))
	assert.Equal(t, api.ContentTypeWAV, recorder.Header().Get(api.HeaderContentType))

	supervisor.Shutdown()

	recorder = doRequest(t, handler, http.MethodPost, api.PathSpeak, `{"text":"Hi"}`)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, api.CodeProcessNotRunning, decodeError(t, recorder).Error)
}
