package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loomdev/hookctx"
)

func TestAddIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	fw, err := New(nil, nil)
	require.NoError(t, err)
	defer fw.Close()

	require.NoError(t, fw.Add(dir))
	require.NoError(t, fw.Add(dir))
}

func TestWriteTriggersUpdateEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "watched.txt")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))

	events := make(chan hookctx.ChangeEvent, 4)
	fw, err := New(func(id string, change hookctx.ChangeEvent) {
		events <- change
	}, nil)
	require.NoError(t, err)
	defer fw.Close()
	require.NoError(t, fw.Add(dir))

	require.NoError(t, os.WriteFile(file, []byte("v2"), 0o644))

	select {
	case ev := <-events:
		assert.Equal(t, "update", ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fs event")
	}
}
