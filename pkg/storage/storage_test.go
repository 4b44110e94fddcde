package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAMQueueCreateDeleteRoundTrip(t *testing.T) {
	q := NewRAMQueue(4)
	require.NoError(t, q.Create("chan-a", false, []byte("fragment 1"), time.Second))
	require.NoError(t, q.Create("chan-a", false, []byte("fragment 2"), time.Second))
	assert.Equal(t, 2, q.Len("chan-a"))

	require.NoError(t, q.Delete("chan-a", 0, 0))
	assert.Equal(t, 1, q.Len("chan-a"))

	err := q.Delete("chan-a", 99, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRAMQueueBlocksWhenFullUntilTimeout(t *testing.T) {
	q := NewRAMQueue(1)
	require.NoError(t, q.Create("chan-a", false, []byte("x"), time.Second))

	err := q.Create("chan-a", false, []byte("y"), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrFull)
}

func TestRAMQueueUnblocksOnDelete(t *testing.T) {
	q := NewRAMQueue(1)
	require.NoError(t, q.Create("chan-a", false, []byte("x"), time.Second))

	var wg sync.WaitGroup
	wg.Add(1)
	var createErr error
	go func() {
		defer wg.Done()
		createErr = q.Create("chan-a", false, []byte("y"), time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Delete("chan-a", 0, 0))
	wg.Wait()
	assert.NoError(t, createErr)
}

func TestFileStoreCreateDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, fs.Create("chan-a", false, []byte("payload"), 0))
	require.NoError(t, fs.Delete("chan-a", 0, 0))

	err = fs.Delete("chan-a", 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}
