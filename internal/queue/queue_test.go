package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestInMemoryPublishConsume(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Job{Kind: KindRetrain, IdentityID: 3}))
	assert.Equal(t, 1, q.Len())

	jobs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case job := <-jobs:
		assert.Equal(t, KindRetrain, job.Kind)
		assert.Equal(t, 3, job.IdentityID)
	case <-time.After(time.Second):
		t.Fatal("job not delivered")
	}

	cancel()
	_, open := <-jobs
	assert.False(t, open)
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Job{Kind: KindRetrain}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Job{Kind: KindRetrain})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s, err := Encode(Job{Kind: KindRetrain, Reason: "enroll", IdentityID: 7, EnqueuedAt: at})
	require.NoError(t, err)

	job, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, "enroll", job.Reason)
	assert.Equal(t, 7, job.IdentityID)
	assert.True(t, job.EnqueuedAt.Equal(at))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("retrain|{}")
	assert.Error(t, err)

	_, err = Decode(`{"reason":"x"}`)
	assert.Error(t, err)
}
