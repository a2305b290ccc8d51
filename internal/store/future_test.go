package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialQueue_RunsInOrder(t *testing.T) {
	q := newSerialQueue()
	var mu sync.Mutex
	var got []int

	var futures []*Future[int]
	for i := 0; i < 50; i++ {
		i := i
		futures = append(futures, submit(q, context.Background(), errors.New("closed"), func(context.Context) (int, error) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return i, nil
		}))
	}
	for i, f := range futures {
		v, err := f.Get()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	q.close()

	want := make([]int, 50)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestSerialQueue_CloseDrainsThenRejects(t *testing.T) {
	q := newSerialQueue()
	release := make(chan struct{})

	first := submit(q, context.Background(), errors.New("closed"), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	second := submit(q, context.Background(), errors.New("closed"), func(context.Context) (int, error) {
		return 2, nil
	})

	closed := make(chan struct{})
	go func() {
		q.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned before queued tasks ran")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-closed

	v, err := first.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = second.Get()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	errClosed := errors.New("closed")
	_, err = submit(q, context.Background(), errClosed, func(context.Context) (int, error) {
		return 3, nil
	}).Get()
	assert.ErrorIs(t, err, errClosed)
}

func TestSerialQueue_ShutdownFromTask(t *testing.T) {
	q := newSerialQueue()

	f := submit(q, context.Background(), errors.New("closed"), func(context.Context) (bool, error) {
		return q.shutdown(), nil
	})
	running, err := f.Get()
	require.NoError(t, err)
	assert.True(t, running)

	q.close()
}

func TestSerialQueue_CloseUnused(t *testing.T) {
	q := newSerialQueue()
	q.close()
	q.close()
}

func TestSerialQueue_Barrier(t *testing.T) {
	q := newSerialQueue()
	release := make(chan struct{})
	var ran atomic.Bool
	q.enqueue(func() {
		<-release
		ran.Store(true)
	})

	done := make(chan struct{})
	go func() {
		q.barrier()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("barrier returned before the queued task ran")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
	assert.True(t, ran.Load())

	q.close()
	q.barrier()
}

func TestFuture_Rejected(t *testing.T) {
	boom := errors.New("boom")
	f := rejected[int](boom)

	select {
	case <-f.Done():
	default:
		t.Fatal("rejected future should already be done")
	}
	v, err := f.Get()
	assert.Zero(t, v)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, f.Err(), boom)
}

func TestFuture_Wait(t *testing.T) {
	f := newFuture[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f.resolve("done", nil)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}
