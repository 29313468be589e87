// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ccw/services/workflow/events"
)

func setupWatcher(t *testing.T, opts *Options) (string, *events.Recorder) {
	t.Helper()
	stateRoot := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.MkdirAll(filepath.Join(stateRoot, ".workflow", "active", "WFS-1"), 0o755))

	bus := events.NewBus()
	t.Cleanup(bus.Close)
	recorder := events.NewRecorder(bus)
	t.Cleanup(recorder.Stop)

	w, err := New(stateRoot, bus, opts)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	return stateRoot, recorder
}

func waitForEvents(t *testing.T, recorder *events.Recorder, want int) []events.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := recorder.Events(); len(got) >= want {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	return recorder.Events()
}

func TestWatcher_ExternalWriteBecomesEvent(t *testing.T) {
	stateRoot, recorder := setupWatcher(t, nil)

	target := filepath.Join(stateRoot, ".workflow", "active", "WFS-1", "workflow-session.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"status":"active"}`), 0o644))

	got := waitForEvents(t, recorder, 1)
	require.NotEmpty(t, got, "external write should surface on the bus")
	event := got[0]
	assert.Equal(t, events.TypeFileWritten, event.Type)
	assert.Equal(t, "WFS-1", event.SessionID)
	assert.Equal(t, "workflow-session.json", event.EntityID)
	assert.Equal(t, true, event.Payload["external"])
	assert.NotEmpty(t, event.Timestamp)
}

func TestWatcher_NestedSessionFile(t *testing.T) {
	stateRoot, recorder := setupWatcher(t, nil)

	taskDir := filepath.Join(stateRoot, ".workflow", "active", "WFS-1", ".task")
	require.NoError(t, os.MkdirAll(taskDir, 0o755))
	time.Sleep(150 * time.Millisecond) // let the new directory get a watch
	require.NoError(t, os.WriteFile(filepath.Join(taskDir, "IMPL-001.json"), []byte("{}"), 0o644))

	got := waitForEvents(t, recorder, 1)
	require.NotEmpty(t, got)
	found := false
	for _, event := range got {
		if event.EntityID == ".task/IMPL-001.json" {
			found = true
			assert.Equal(t, "WFS-1", event.SessionID)
		}
	}
	assert.True(t, found, "task file write should be classified under its session")
}

func TestWatcher_DiscoversNewSessionDirectories(t *testing.T) {
	stateRoot, recorder := setupWatcher(t, nil)

	newSession := filepath.Join(stateRoot, ".workflow", "active", "WFS-2")
	require.NoError(t, os.MkdirAll(newSession, 0o755))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(newSession, "workflow-session.json"), []byte("{}"), 0o644))

	got := waitForEvents(t, recorder, 1)
	found := false
	for _, event := range got {
		if event.SessionID == "WFS-2" {
			found = true
		}
	}
	assert.True(t, found, "files in sessions created after Start should be seen")
}

func TestWatcher_IgnoresTempAndRootLevelFiles(t *testing.T) {
	stateRoot, recorder := setupWatcher(t, nil)

	activeRoot := filepath.Join(stateRoot, ".workflow", "active")
	require.NoError(t, os.WriteFile(filepath.Join(activeRoot, "WFS-1", ".tmp-12345"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(activeRoot, "stray.json"), []byte("{}"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, recorder.Events())
}

func TestWatcher_RateLimitCapsPublishes(t *testing.T) {
	stateRoot, recorder := setupWatcher(t, &Options{EventsPerSecond: 0.001, Burst: 2})

	sessionDir := filepath.Join(stateRoot, ".workflow", "active", "WFS-1")
	for i := 0; i < 6; i++ {
		require.NoError(t, os.WriteFile(
			filepath.Join(sessionDir, fmt.Sprintf("file-%d.md", i)), []byte("x"), 0o644))
	}

	got := waitForEvents(t, recorder, 2)
	require.Len(t, got, 2, "the burst is the hard cap")

	time.Sleep(300 * time.Millisecond)
	assert.Len(t, recorder.Events(), 2, "nothing may trickle past the limiter")
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	stateRoot := filepath.Join(t.TempDir(), "state")
	bus := events.NewBus()
	defer bus.Close()

	w, err := New(stateRoot, bus, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
}
