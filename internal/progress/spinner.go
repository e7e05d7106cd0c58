package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	DefaultInterval = 100 * time.Millisecond

	label    = "Transcribing... "
	doneLine = "\rTranscription completed!     \n"
)

var frames = [...]string{"|", "/", "-", `\`}

// Spinner redraws a rotating symbol on one terminal line until stopped.
type Spinner struct {
	w        io.Writer
	interval time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start launches the spinner goroutine writing to w.
func Start(w io.Writer) *Spinner {
	return StartWithInterval(w, DefaultInterval)
}

func StartWithInterval(w io.Writer, interval time.Duration) *Spinner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Spinner{
		w:        w,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Spinner) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.stop:
			fmt.Fprint(s.w, doneLine)
			return
		default:
		}

		fmt.Fprint(s.w, "\r"+label+frames[i%len(frames)])

		select {
		case <-s.stop:
			fmt.Fprint(s.w, doneLine)
			return
		case <-ticker.C:
		}
	}
}

// Stop signals the goroutine and waits for it to print the completion line.
// Safe to call more than once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
