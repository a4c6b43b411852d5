package events

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe(8)
	defer cancel1()
	ch2, cancel2 := bus.Subscribe(8)
	defer cancel2()

	ev := domain.Event{Kind: domain.EventStatus, JobID: uuid.NewString()}
	bus.Publish(ev)

	assert.Equal(t, ev.JobID, (<-ch1).JobID)
	assert.Equal(t, ev.JobID, (<-ch2).JobID)
}

func TestBus_OrderPreservedPerJob(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(100)
	defer cancel()

	jobID := uuid.NewString()
	for i := 0; i < 50; i++ {
		bus.Publish(domain.Event{
			Kind:  domain.EventProgress,
			JobID: jobID,
			Job:   &domain.Job{Percent: float64(i)},
		})
	}

	for i := 0; i < 50; i++ {
		got := <-ch
		assert.Equal(t, float64(i), got.Job.Percent)
	}
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(4)
	defer cancel()

	// Nobody reads; publishing must not block and must keep the newest.
	for i := 0; i < 20; i++ {
		bus.Publish(domain.Event{JobID: fmt.Sprintf("job-%d", i)})
	}

	var got []string
	for len(ch) > 0 {
		got = append(got, (<-ch).JobID)
	}
	require.Len(t, got, 4)
	assert.Equal(t, "job-19", got[len(got)-1])
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	bus.Publish(domain.Event{JobID: "x"})
}

func TestBus_CloseClosesAll(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Close()
	_, open := <-ch
	assert.False(t, open)

	// Subscribe after close yields a closed channel.
	ch2, _ := bus.Subscribe(1)
	_, open = <-ch2
	assert.False(t, open)
}
