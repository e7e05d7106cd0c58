package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// lockedBuffer lets the test read what the spinner goroutine wrote.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerCyclesAndCompletes(t *testing.T) {
	out := &lockedBuffer{}
	s := StartWithInterval(out, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	got := out.String()
	for _, frame := range frames {
		if !strings.Contains(got, "\rTranscribing... "+frame) {
			t.Fatalf("missing frame %q in %q", frame, got)
		}
	}
	if !strings.HasSuffix(got, doneLine) {
		t.Fatalf("output does not end with completion line: %q", got)
	}
	if strings.Count(got, "Transcription completed!") != 1 {
		t.Fatalf("completion line printed more than once: %q", got)
	}
}

// TestSpinnerStopIsIdempotent checks a second Stop neither blocks nor prints.
func TestSpinnerStopIsIdempotent(t *testing.T) {
	out := &lockedBuffer{}
	s := Start(out)
	s.Stop()

	finished := make(chan struct{})
	go func() {
		s.Stop()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("second Stop blocked")
	}
	if strings.Count(out.String(), "Transcription completed!") != 1 {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

// TestSpinnerStopLatency checks Stop returns within about one interval.
func TestSpinnerStopLatency(t *testing.T) {
	s := StartWithInterval(&lockedBuffer{}, 50*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Stop took %s", elapsed)
	}
}
