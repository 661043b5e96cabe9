package sensors

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedRecognizer struct {
	mu     sync.Mutex
	chunks []string
	i      int
}

func (s *scriptedRecognizer) Listen(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.chunks) {
		time.Sleep(5 * time.Millisecond)
		return "", nil
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func TestVoiceEarDebouncesChunksIntoOneEvent(t *testing.T) {
	recognizer := &scriptedRecognizer{chunks: []string{"what", "time", "is it"}}
	var mu sync.Mutex
	var events []Event
	inject := func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	ear := NewVoiceEar(recognizer, inject, &Speaking{})
	ear.debounceWait = 30 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ear.Start(ctx)
	defer ear.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "voice_input", events[0].Type)
	require.Equal(t, "what time is it", events[0].Payload["text"])
}

func TestVoiceEarSuspendsWhileSpeaking(t *testing.T) {
	recognizer := &scriptedRecognizer{chunks: []string{"echo of my own voice"}}
	var mu sync.Mutex
	var events []Event
	inject := func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	speaking := &Speaking{}
	speaking.Set(true)
	ear := NewVoiceEar(recognizer, inject, speaking)
	ear.debounceWait = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ear.Start(ctx)
	defer ear.Stop()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, events, "ear must not transcribe while the system is speaking")
}

func TestTimeSensorEmitsOnceForDueEventAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "time_events.json")

	sched := scheduleFile{Events: []ScheduledEvent{
		{ID: "evt-1", Type: "reminder", TriggerTime: time.Now().Add(-time.Minute).Format(time.RFC3339), Description: "standup"},
	}}
	data, err := json.Marshal(sched)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var mu sync.Mutex
	var events []Event
	inject := func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	ts := NewTime(path, inject)
	ts.pollOnce()
	ts.pollOnce()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1, "a due event must be emitted once and then deduplicated")
	require.Equal(t, "time_event", events[0].Type)
	require.Equal(t, "evt-1", events[0].Payload["event_id"])
}

func TestTimeSensorIgnoresStaleAndFutureEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "time_events.json")

	sched := scheduleFile{Events: []ScheduledEvent{
		{ID: "stale", TriggerTime: time.Now().Add(-time.Hour).Format(time.RFC3339), Description: "too old"},
		{ID: "future", TriggerTime: time.Now().Add(time.Hour).Format(time.RFC3339), Description: "not yet"},
	}}
	data, err := json.Marshal(sched)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var events []Event
	ts := NewTime(path, func(e Event) { events = append(events, e) })
	ts.pollOnce()
	require.Empty(t, events)
}
