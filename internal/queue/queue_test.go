package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polycopy/internal/queue"
)

func TestQueue_PutGetFIFO(t *testing.T) {
	q := queue.New[int](10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Put(ctx, i))
	}

	for i := 1; i <= 3; i++ {
		got, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
}

func TestQueue_TryPutFull(t *testing.T) {
	q := queue.New[string](1)

	require.NoError(t, q.TryPut("a"))
	err := q.TryPut("b")
	assert.ErrorIs(t, err, queue.ErrFull)
	assert.True(t, q.Full())
}

func TestQueue_TryGetEmpty(t *testing.T) {
	q := queue.New[int](1)

	_, err := q.TryGet()
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestQueue_ShutdownUnblocksGet(t *testing.T) {
	q := queue.New[int](1)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		errCh <- err
	}()

	// Dar tiempo a que el getter quede bloqueado
	time.Sleep(20 * time.Millisecond)
	q.Shutdown(false)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, queue.ErrShutdown)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Shutdown")
	}
}

func TestQueue_ShutdownRejectsPut(t *testing.T) {
	q := queue.New[int](1)
	q.Shutdown(false)

	err := q.Put(context.Background(), 1)
	assert.ErrorIs(t, err, queue.ErrShutdown)
	err = q.TryPut(2)
	assert.ErrorIs(t, err, queue.ErrShutdown)
}

func TestQueue_ShutdownDrainsQueuedItems(t *testing.T) {
	q := queue.New[int](5)
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Put(ctx, 2))
	q.Shutdown(false)

	got, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, err = q.Get(ctx)
	assert.ErrorIs(t, err, queue.ErrShutdown)
}

func TestQueue_ImmediateShutdownDropsItems(t *testing.T) {
	q := queue.New[int](5)
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, 1))
	q.Shutdown(true)

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, queue.ErrShutdown)

	// Join no debe bloquear: los items descartados cuentan como terminados.
	joinCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, q.Join(joinCtx))
}

func TestQueue_JoinWaitsForTaskDone(t *testing.T) {
	q := queue.New[int](5)
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, 1))
	_, err := q.Get(ctx)
	require.NoError(t, err)

	joinCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, q.Join(joinCtx), "join must block until TaskDone")

	q.TaskDone()

	joinCtx2, cancel2 := context.WithTimeout(ctx, time.Second)
	defer cancel2()
	assert.NoError(t, q.Join(joinCtx2))
}

func TestQueue_GetHonorsContextCancel(t *testing.T) {
	q := queue.New[int](1)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Get(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after context cancel")
	}
}

func TestQueue_PutBlocksUntilSpace(t *testing.T) {
	q := queue.New[int](1)
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, 2) }()

	time.Sleep(20 * time.Millisecond)
	got, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after Get freed space")
	}

	got, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}
