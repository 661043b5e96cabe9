// Package sensors implements the long-running background drivers that
// inject events into the facade: a debounced voice listener and a
// polled time-schedule watcher. Each runs on its own goroutine and
// calls a thread-safe injectEvent callback; neither shares state with
// the main event loop beyond the event payload and the package-level
// Speaking flag.
package sensors

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one occurrence handed to the facade's injectEvent callback.
type Event struct {
	Type    string
	Source  string
	Payload map[string]any
}

// InjectFunc is the facade's thread-safe event-injection entry point.
type InjectFunc func(Event)

// Speaking is the single shared mutable flag between the TTS skill and
// the Voice Ear sensor: set while the system is speaking so the ear
// suspends its own consumption and doesn't transcribe its own voice.
// A plain atomic.Bool rather than a channel, per the flag's genuinely
// shared nature — there is no producer/consumer handoff to model.
type Speaking struct{ flag atomic.Bool }

func (s *Speaking) Set(speaking bool) { s.flag.Store(speaking) }
func (s *Speaking) Get() bool         { return s.flag.Load() }

// Recognizer transcribes one chunk of listened audio. Production
// wiring supplies a backend calling an actual speech-to-text service;
// no such library appears anywhere in the example pack, so the sensor
// itself stays transport-agnostic behind this interface.
type Recognizer interface {
	// Listen blocks until one chunk of speech is captured or ctx is
	// done, returning the transcribed text (possibly empty for
	// silence) or an error.
	Listen(ctx context.Context) (string, error)
}

// VoiceEar listens continuously, buffering transcribed chunks and
// flushing them as one voice_input event after debounceWait of
// silence.
type VoiceEar struct {
	recognizer   Recognizer
	inject       InjectFunc
	speaking     *Speaking
	debounceWait time.Duration

	mu      sync.Mutex
	buffer  []string
	lastHit time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewVoiceEar builds a VoiceEar with the spec's default 1.5s debounce
// window.
func NewVoiceEar(recognizer Recognizer, inject InjectFunc, speaking *Speaking) *VoiceEar {
	return &VoiceEar{
		recognizer:   recognizer,
		inject:       inject,
		speaking:     speaking,
		debounceWait: 1500 * time.Millisecond,
	}
}

// Start launches the listen loop on its own goroutine. Calling Start
// twice is a no-op.
func (e *VoiceEar) Start(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.listenLoop(ctx)
}

// Stop signals the listen loop to exit and waits for it to join,
// bounded by one polling interval as the loop checks ctx between
// chunks.
func (e *VoiceEar) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}

func (e *VoiceEar) listenLoop(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e.speaking != nil && e.speaking.Get() {
			e.flushIfDebounced()
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		text, err := e.recognizer.Listen(ctx)
		if err != nil {
			e.flushIfDebounced()
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			e.flushIfDebounced()
			continue
		}

		e.mu.Lock()
		e.buffer = append(e.buffer, text)
		e.lastHit = time.Now()
		e.mu.Unlock()

		e.flushIfDebounced()
	}
}

func (e *VoiceEar) flushIfDebounced() {
	e.mu.Lock()
	if len(e.buffer) == 0 || time.Since(e.lastHit) < e.debounceWait {
		e.mu.Unlock()
		return
	}
	full := strings.Join(e.buffer, " ")
	e.buffer = nil
	e.mu.Unlock()

	if len(full) < 3 {
		return
	}

	e.inject(Event{
		Type:   "voice_input",
		Source: "sensor_ear",
		Payload: map[string]any{
			"text":      full,
			"status":    "success",
			"timestamp": time.Now().Unix(),
		},
	})
}
