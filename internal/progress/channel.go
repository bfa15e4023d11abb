// Package progress delivers ordered per-job progress events from the
// supervisor to any number of readers.
//
// Publishing appends to an in-memory buffer and never blocks on readers, so a
// slow or absent consumer cannot stall the pipeline. Readers either long-poll
// with Fetch (used by IPC and HTTP) or iterate a Subscription until the job's
// stream is closed at its terminal state.
package progress

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"vidscribe/internal/job"
)

// ErrUnknownJob is returned for a job that has no stream.
var ErrUnknownJob = errors.New("no progress stream for job")

const defaultRetainClosed = 16

type stream struct {
	events []job.ProgressEvent
	closed bool
}

// Channel holds one ordered event stream per job.
type Channel struct {
	mu      sync.Mutex
	cond    *sync.Cond
	streams map[string]*stream
	order   []string
	retain  int
	nextSeq uint64
}

// NewChannel constructs a channel keeping at most retainClosed finished
// streams for late readers.
func NewChannel(retainClosed int) *Channel {
	if retainClosed <= 0 {
		retainClosed = defaultRetainClosed
	}
	c := &Channel{streams: make(map[string]*stream), retain: retainClosed}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Open creates an empty stream for jobID. Opening an existing stream is a no-op.
func (c *Channel) Open(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.streams[jobID]; ok {
		return
	}
	c.streams[jobID] = &stream{}
	c.order = append(c.order, jobID)
	c.pruneLocked()
}

// Publish appends evt to its job's stream and wakes waiting readers. Events
// for unknown or closed streams are dropped. The percent is clamped so a
// stream never goes backwards.
func (c *Channel) Publish(evt job.ProgressEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[evt.JobID]
	if !ok || s.closed {
		return false
	}
	if n := len(s.events); n > 0 && evt.Percent < s.events[n-1].Percent {
		evt.Percent = s.events[n-1].Percent
	}
	evt.Percent = min(max(evt.Percent, 0), 100)
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	c.nextSeq++
	evt.Sequence = c.nextSeq
	s.events = append(s.events, evt)
	c.cond.Broadcast()
	return true
}

// Close marks the stream finished. Readers drain the remaining events and
// then observe the end of the stream.
func (c *Channel) Close(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.streams[jobID]; ok && !s.closed {
		s.closed = true
		c.cond.Broadcast()
	}
}

// Fetch returns events for jobID with sequence greater than since. When wait
// is true and nothing is available, Fetch blocks until an event arrives, the
// stream closes, or ctx ends. done reports that the stream is closed and every
// event has been returned.
func (c *Channel) Fetch(ctx context.Context, jobID string, since uint64, wait bool) (events []job.ProgressEvent, done bool, err error) {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		s, ok := c.streams[jobID]
		if !ok {
			return nil, false, ErrUnknownJob
		}
		events = eventsAfter(s.events, since)
		if len(events) > 0 || s.closed || !wait {
			return events, s.closed, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		c.cond.Wait()
	}
}

func eventsAfter(events []job.ProgressEvent, since uint64) []job.ProgressEvent {
	for i, evt := range events {
		if evt.Sequence > since {
			out := make([]job.ProgressEvent, len(events)-i)
			copy(out, events[i:])
			return out
		}
	}
	return nil
}

// pruneLocked drops the oldest closed streams beyond the retention limit.
func (c *Channel) pruneLocked() {
	closed := 0
	for _, id := range c.order {
		if s := c.streams[id]; s != nil && s.closed {
			closed++
		}
	}
	if closed <= c.retain {
		return
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if s := c.streams[id]; s != nil && s.closed && closed > c.retain {
			delete(c.streams, id)
			closed--
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
}

// Subscription iterates one job's events from the beginning of its stream.
type Subscription struct {
	channel *Channel
	jobID   string
	cursor  uint64
	pending []job.ProgressEvent
	done    bool
}

// Subscribe returns a cursor over jobID's stream.
func (c *Channel) Subscribe(jobID string) (*Subscription, error) {
	c.mu.Lock()
	_, ok := c.streams[jobID]
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownJob
	}
	return &Subscription{channel: c, jobID: jobID}, nil
}

// JobID reports which job the subscription follows.
func (s *Subscription) JobID() string { return s.jobID }

// Next blocks until the next event is available. It returns io.EOF once the
// job reached a terminal state and all events were delivered.
func (s *Subscription) Next(ctx context.Context) (job.ProgressEvent, error) {
	for len(s.pending) == 0 {
		if s.done {
			return job.ProgressEvent{}, io.EOF
		}
		events, done, err := s.channel.Fetch(ctx, s.jobID, s.cursor, true)
		if err != nil {
			return job.ProgressEvent{}, err
		}
		s.pending = events
		s.done = done
	}
	evt := s.pending[0]
	s.pending = s.pending[1:]
	s.cursor = evt.Sequence
	return evt, nil
}
