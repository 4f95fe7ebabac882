package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/txn2/mcp-interviewer/pkg/interview"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestManager_StartAndGet(t *testing.T) {
	m := NewManager(NewMemoryStore(), WithTTL(time.Minute))
	ctx := context.Background()

	sess, err := m.Start(ctx, func(s *Session) {
		s.Append(interview.Turn{Role: interview.RoleSystem, Text: "welcome"})
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, interview.StateAwaitingReady, sess.State)
	assert.WithinDuration(t, sess.CreatedAt.Add(time.Minute), sess.ExpiresAt, time.Second)

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, "welcome", got.History[0].Text)
}

func TestManager_GetMissing(t *testing.T) {
	m := NewManager(NewMemoryStore())
	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_UpdateExtendsExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewManager(NewMemoryStore(), WithTTL(10*time.Minute), WithClock(clock))
	ctx := context.Background()

	// Share the clock so expiry checks agree.
	m.store.(*MemoryStore).now = clock

	sess, err := m.Start(ctx, nil)
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	got, err := m.Update(ctx, sess.ID, func(s *Session) error {
		s.State = interview.StateAwaitingAnswer
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), got.ExpiresAt)
	assert.Equal(t, int64(1), got.Version)
}

func TestManager_UpdateErrorSavesNothing(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()
	sess, err := m.Start(ctx, nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = m.Update(ctx, sess.ID, func(s *Session) error {
		s.State = interview.StateCompleted
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, interview.StateAwaitingReady, got.State)
}

func TestManager_UpdateMissing(t *testing.T) {
	m := NewManager(NewMemoryStore())
	called := false
	_, err := m.Update(context.Background(), "missing", func(*Session) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
}

func TestManager_DeleteDuringUpdateIsNotResurrected(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()
	sess, err := m.Start(ctx, nil)
	require.NoError(t, err)

	_, err = m.Update(ctx, sess.ID, func(*Session) error {
		return m.Delete(ctx, sess.ID)
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_UpdatesAreSerializedPerSession(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()
	sess, err := m.Start(ctx, nil)
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Update(ctx, sess.ID, func(s *Session) error {
				s.AttemptCount++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.AttemptCount)
	assert.Equal(t, int64(workers), got.Version)
	assert.Zero(t, m.locks.held(), "locks are released")
}

func TestManager_LockHonorsContext(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()
	sess, err := m.Start(ctx, nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Update(ctx, sess.ID, func(*Session) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Update(short, sess.ID, func(*Session) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
	assert.Zero(t, m.locks.held())
}

func TestManager_SweeperStopsOnClose(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, WithTTL(time.Millisecond))
	_, err := m.Start(context.Background(), nil)
	require.NoError(t, err)

	m.StartSweeper(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close())
}
