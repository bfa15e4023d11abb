package progress_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"vidscribe/internal/job"
	"vidscribe/internal/progress"
)

func publish(c *progress.Channel, id string, percents ...int) {
	for _, p := range percents {
		c.Publish(job.ProgressEvent{JobID: id, Stage: "extract", Percent: p, Message: "m"})
	}
}

func TestSubscriptionDeliversInOrderThenEOF(t *testing.T) {
	c := progress.NewChannel(0)
	c.Open("job-1")
	publish(c, "job-1", 0, 25, 75, 90, 100)
	c.Close("job-1")

	sub, err := c.Subscribe("job-1")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	var got []int
	for {
		evt, err := sub.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		got = append(got, evt.Percent)
	}
	want := []int{0, 25, 75, 90, 100}
	if len(got) != len(want) {
		t.Fatalf("unexpected events %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestPublishNeverGoesBackwards(t *testing.T) {
	c := progress.NewChannel(0)
	c.Open("job")
	publish(c, "job", 50, 10, 120)

	events, _, err := c.Fetch(context.Background(), "job", 0, false)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if events[1].Percent != 50 || events[2].Percent != 100 {
		t.Fatalf("expected clamped percents, got %+v", events)
	}
}

func TestPublishWithoutReaderDoesNotBlock(t *testing.T) {
	c := progress.NewChannel(0)
	c.Open("job")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.Publish(job.ProgressEvent{JobID: "job", Percent: i / 10})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a reader")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	c := progress.NewChannel(0)
	c.Open("job")
	c.Close("job")
	if c.Publish(job.ProgressEvent{JobID: "job", Percent: 10}) {
		t.Fatal("expected publish after close to be dropped")
	}
	if c.Publish(job.ProgressEvent{JobID: "other", Percent: 10}) {
		t.Fatal("expected publish to unknown job to be dropped")
	}
}

func TestSubscriptionWakesOnLivePublish(t *testing.T) {
	c := progress.NewChannel(0)
	c.Open("job")
	sub, err := c.Subscribe("job")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	got := make(chan job.ProgressEvent, 1)
	go func() {
		evt, err := sub.Next(context.Background())
		if err != nil {
			t.Errorf("Next returned error: %v", err)
		}
		got <- evt
	}()

	time.Sleep(20 * time.Millisecond)
	publish(c, "job", 25)

	select {
	case evt := <-got:
		if evt.Percent != 25 {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not woken")
	}
}

func TestSubscriptionEndsWhenStreamClosesWhileWaiting(t *testing.T) {
	c := progress.NewChannel(0)
	c.Open("job")
	sub, _ := c.Subscribe("job")

	errs := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.Close("job")

	select {
	case err := <-errs:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not observe close")
	}
}

func TestFetchHonoursContext(t *testing.T) {
	c := progress.NewChannel(0)
	c.Open("job")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := c.Fetch(ctx, "job", 0, true); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestUnknownJob(t *testing.T) {
	c := progress.NewChannel(0)
	if _, err := c.Subscribe("missing"); !errors.Is(err, progress.ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestClosedStreamsArePruned(t *testing.T) {
	c := progress.NewChannel(1)
	c.Open("a")
	c.Close("a")
	c.Open("b")
	c.Close("b")
	c.Open("c")

	if _, err := c.Subscribe("a"); !errors.Is(err, progress.ErrUnknownJob) {
		t.Fatalf("expected oldest closed stream pruned, got %v", err)
	}
	if _, err := c.Subscribe("b"); err != nil {
		t.Fatalf("expected most recent closed stream retained: %v", err)
	}
}
