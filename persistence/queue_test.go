package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCircularFileQueueFIFO(t *testing.T) {
	dir := t.TempDir()
	q, err := NewCircularFileQueue(dir, FIFO, 0, nil)
	require.NoError(t, err)

	require.NoError(t, q.Push([]byte("a")))
	require.NoError(t, q.Push([]byte("b")))
	require.Equal(t, 2, q.Len())

	got, err := q.Front()
	require.NoError(t, err)
	require.Equal(t, "a", string(got))

	require.NoError(t, q.Pop())
	got, err = q.Front()
	require.NoError(t, err)
	require.Equal(t, "b", string(got))
}

func TestCircularFileQueueLIFO(t *testing.T) {
	dir := t.TempDir()
	q, err := NewCircularFileQueue(dir, LIFO, 0, nil)
	require.NoError(t, err)

	require.NoError(t, q.Push([]byte("a")))
	require.NoError(t, q.Push([]byte("b")))

	got, err := q.Front()
	require.NoError(t, err)
	require.Equal(t, "b", string(got))

	require.NoError(t, q.Pop())
	got, err = q.Front()
	require.NoError(t, err)
	require.Equal(t, "a", string(got))
}

func TestCircularFileQueueEmpty(t *testing.T) {
	dir := t.TempDir()
	q, err := NewCircularFileQueue(dir, FIFO, 0, nil)
	require.NoError(t, err)
	require.True(t, q.Empty())

	_, err = q.Front()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestCircularFileQueueEvictsOldestOverCap(t *testing.T) {
	dir := t.TempDir()
	q, err := NewCircularFileQueue(dir, FIFO, 2, nil)
	require.NoError(t, err)

	require.NoError(t, q.Push([]byte("a"))) // size 1
	require.NoError(t, q.Push([]byte("b"))) // size 2, total 2 - ok
	require.NoError(t, q.Push([]byte("c"))) // total 3 > 2, evict oldest ("a")

	require.Equal(t, 2, q.Len())
	got, err := q.Front()
	require.NoError(t, err)
	require.Equal(t, "b", string(got))
}

func TestCircularFileQueueRecoversFromDisk(t *testing.T) {
	dir := t.TempDir()
	q1, err := NewCircularFileQueue(dir, FIFO, 0, nil)
	require.NoError(t, err)
	require.NoError(t, q1.Push([]byte("x")))
	require.NoError(t, q1.Push([]byte("y")))

	q2, err := NewCircularFileQueue(dir, FIFO, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 2, q2.Len())

	got, err := q2.Front()
	require.NoError(t, err)
	require.Equal(t, "x", string(got))
}
