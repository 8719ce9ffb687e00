package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	r, dir := setupRegistry(t, nil)

	w, err := NewWatcher(r, WatchConfig{Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	writeToolFile(t, dir, "generated", "late.json", toolJSON("late_arrival", TierGenerated))

	ok := waitFor(t, 3*time.Second, func() bool {
		_, found := r.Get("late_arrival")
		return found
	})
	require.True(t, ok, "watcher never picked up new tool file")

	require.NoError(t, os.Remove(filepath.Join(dir, "generated", "late.json")))
	ok = waitFor(t, 3*time.Second, func() bool {
		_, found := r.Get("late_arrival")
		return !found
	})
	assert.True(t, ok, "watcher never removed deleted tool")
}

func TestWatcherIgnoresExcluded(t *testing.T) {
	r, dir := setupRegistry(t, nil)

	w, err := NewWatcher(r, WatchConfig{
		ExcludePatterns: []string{"*.tmp.json"},
		Debounce:        20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	writeToolFile(t, dir, "generated", "draft.tmp.json", toolJSON("draft", TierGenerated))
	time.Sleep(300 * time.Millisecond)

	_, found := r.Get("draft")
	assert.False(t, found)
}

func TestWatcherRejectsBadPattern(t *testing.T) {
	r, _ := setupRegistry(t, nil)
	_, err := NewWatcher(r, WatchConfig{ExcludePatterns: []string{"[unclosed"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}
