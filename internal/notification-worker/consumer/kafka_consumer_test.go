package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/pkg/contracts/events"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeStore struct {
	mu    sync.Mutex
	saved map[string]bool
	fails int
}

func (s *fakeStore) Save(_ context.Context, n events.MatchNotification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return false, errors.New("db down")
	}
	if s.saved[n.NotificationID] {
		return false, nil
	}
	s.saved[n.NotificationID] = true
	return true, nil
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func msg(t *testing.T, offset int64, n events.MatchNotification) kafka.Message {
	t.Helper()
	b, err := json.Marshal(n)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(n.UserID), Value: b}
}

func note(id string, persistent bool) events.MatchNotification {
	return events.MatchNotification{
		NotificationID: id,
		UserID:         "alice",
		Subject:        "You won!",
		Content:        map[string]any{"matchId": "m1"},
		Code:           101,
		Persistent:     persistent,
		Ts:             time.Now().UTC(),
	}
}

// runUntil executa o processor até todas as mensagens serem confirmadas
func runUntil(t *testing.T, p *Processor, r *fakeReader, n int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	require.Eventually(t, func() bool { return len(r.commits()) == n }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestProcessorStoresPersistentNotifications(t *testing.T) {
	r := &fakeReader{}
	r.queue = []kafka.Message{
		msg(t, 1, note("n1", true)),
		msg(t, 2, note("n2", false)),
		msg(t, 3, note("n1", true)), // reentrega
	}
	st := &fakeStore{saved: map[string]bool{}}
	var stored, skipped int
	p := &Processor{
		Log: zap.NewNop(), Reader: r, Store: st,
		OnStored:  func() { stored++ },
		OnSkipped: func() { skipped++ },
	}

	runUntil(t, p, r, 3)
	assert.Equal(t, []int64{1, 2, 3}, r.commits())
	assert.Equal(t, 1, stored)
	assert.Equal(t, 2, skipped)
	assert.True(t, st.saved["n1"])
	assert.False(t, st.saved["n2"])
}

func TestProcessorRetriesThenStores(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{msg(t, 7, note("n7", true))}}
	st := &fakeStore{saved: map[string]bool{}, fails: 2}
	dlq := &captureWriter{}
	p := &Processor{Log: zap.NewNop(), Reader: r, Store: st, DLQ: dlq, Retries: 3, Backoff: time.Millisecond}

	runUntil(t, p, r, 1)
	assert.True(t, st.saved["n7"])
	assert.Empty(t, dlq.msgs)
}

func TestProcessorDeadLettersAfterRetries(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{msg(t, 9, note("n9", true))}}
	st := &fakeStore{saved: map[string]bool{}, fails: 10}
	dlq := &captureWriter{}
	var stages []string
	p := &Processor{
		Log: zap.NewNop(), Reader: r, Store: st, DLQ: dlq, Retries: 2, Backoff: time.Millisecond,
		OnError: func(s string) { stages = append(stages, s) },
	}

	runUntil(t, p, r, 1)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "alice", string(dlq.msgs[0].Key))
	assert.Equal(t, "error", dlq.msgs[0].Headers[0].Key)
	assert.Equal(t, []string{"db_insert"}, stages)
	assert.Equal(t, 7, st.fails)
}

func TestProcessorDeadLettersInvalidPayload(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte(`not json`)},
		{Offset: 2, Value: []byte(`{"subject":"x"}`)},
	}}
	dlq := &captureWriter{}
	p := &Processor{Log: zap.NewNop(), Reader: r, Store: &fakeStore{saved: map[string]bool{}}, DLQ: dlq}

	runUntil(t, p, r, 2)
	assert.Len(t, dlq.msgs, 2)
}
