package worker

import (
	"bufio"
	"io"
	"iter"
	"strings"
)

// DefaultReadyMarker is the line the bundled worker logs once its model is loaded.
const DefaultReadyMarker = "Model loaded, ready for requests"

// MaxLineSize bounds a single worker log line yielded by Lines.
const MaxLineSize = 1024 * 1024

// ReadinessDetector decides from the worker's log output when it can serve
// requests. It may be replaced by a handshake frame without changing the
// Supervisor API.
type ReadinessDetector interface {
	Observe(line string) bool
}

// MarkerDetector reports readiness when a log line contains Marker.
type MarkerDetector struct {
	Marker string
}

// Observe implements ReadinessDetector.
func (d MarkerDetector) Observe(line string) bool {
	return d.Marker != "" && strings.Contains(line, d.Marker)
}

// Lines yields the trimmed, non-empty lines read from reader until it is
// exhausted or fails. Lines longer than MaxLineSize are truncated and the
// rest of the line is discarded, so a chatty writer is always drained.
func Lines(reader io.Reader) iter.Seq[string] {
	return func(yield func(string) bool) {
		buffered := bufio.NewReader(reader)
		line := make([]byte, 0, bufio.MaxScanTokenSize)

		for {
			chunk, isPrefix, err := buffered.ReadLine()
			if room := MaxLineSize - len(line); room > 0 {
				line = append(line, chunk[:min(len(chunk), room)]...)
			}

			if isPrefix && err == nil {
				continue
			}

			text := strings.TrimSpace(string(line))
			line = line[:0]

			if text != "" && !yield(text) {
				return
			}

			if err != nil {
				return
			}
		}
	}
}
