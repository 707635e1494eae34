package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// Sink is the durable destination for metrics data. Implementations may
// write to a relational store, a local journal file, or both.
type Sink interface {
	AppendInteraction(ctx context.Context, rec models.InteractionRecord) error
	AppendInsight(ctx context.Context, ins models.LearningInsight) error
	AppendSkill(ctx context.Context, skill models.AgentSkill) error
}

const (
	// journalCapacity bounds the in-memory buffer. At typical record sizes
	// this holds well under a second of traffic.
	journalCapacity = 1024

	// deliveryMaxElapsed bounds per-entry retry time before the entry is dropped.
	deliveryMaxElapsed = 5 * time.Second
)

type entryKind int

const (
	entryInteraction entryKind = iota
	entryInsight
	entrySkill
)

type journalEntry struct {
	kind        entryKind
	interaction models.InteractionRecord
	insight     models.LearningInsight
	skill       models.AgentSkill
}

// journal drains metrics entries to the sink on its own goroutine.
// The enqueue path never blocks: when the buffer is full, the oldest
// non-critical entries (interactions) are shed and reported via onShed.
type journal struct {
	sink Sink

	mu     sync.Mutex
	buf    []journalEntry
	notify chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	onShed func(dropped int)
}

func newJournal(sink Sink) *journal {
	return &journal{
		sink:   sink,
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (j *journal) start() {
	go j.run()
}

// stop drains remaining entries (best effort) and stops the worker.
func (j *journal) stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	<-j.done
}

func (j *journal) enqueue(rec models.InteractionRecord) {
	j.push(journalEntry{kind: entryInteraction, interaction: rec})
}

func (j *journal) enqueueInsight(ins models.LearningInsight) {
	j.push(journalEntry{kind: entryInsight, insight: ins})
}

func (j *journal) enqueueSkill(skill models.AgentSkill) {
	j.push(journalEntry{kind: entrySkill, skill: skill})
}

func (j *journal) push(e journalEntry) {
	var shed int

	j.mu.Lock()
	if len(j.buf) >= journalCapacity {
		// Shed the oldest interaction entries; insights and skills are
		// small and rare enough to keep.
		kept := j.buf[:0]
		for _, old := range j.buf {
			if shed < journalCapacity/10 && old.kind == entryInteraction {
				shed++
				continue
			}
			kept = append(kept, old)
		}
		j.buf = kept
	}
	j.buf = append(j.buf, e)
	j.mu.Unlock()

	select {
	case j.notify <- struct{}{}:
	default:
	}

	if shed > 0 && j.onShed != nil {
		slog.Warn("Metrics journal full, shedding oldest records", "dropped", shed)
		j.onShed(shed)
	}
}

func (j *journal) pop() (journalEntry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.buf) == 0 {
		return journalEntry{}, false
	}
	e := j.buf[0]
	j.buf = j.buf[1:]
	return e, true
}

func (j *journal) run() {
	defer close(j.done)

	for {
		e, ok := j.pop()
		if !ok {
			select {
			case <-j.notify:
				continue
			case <-j.stopCh:
				// Final drain before exit.
				for {
					e, ok := j.pop()
					if !ok {
						return
					}
					j.deliver(e)
				}
			}
		}
		j.deliver(e)
	}
}

// deliver writes one entry to the sink, retrying with exponential backoff
// up to deliveryMaxElapsed. Entries that still fail are dropped with a log.
func (j *journal) deliver(e journalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryMaxElapsed)
	defer cancel()

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(deliveryMaxElapsed),
	), ctx)

	err := backoff.Retry(func() error {
		switch e.kind {
		case entryInteraction:
			return j.sink.AppendInteraction(ctx, e.interaction)
		case entryInsight:
			return j.sink.AppendInsight(ctx, e.insight)
		case entrySkill:
			return j.sink.AppendSkill(ctx, e.skill)
		}
		return nil
	}, policy)
	if err != nil {
		slog.Warn("Metrics sink delivery failed, dropping entry",
			"kind", e.kind, "error", err)
	}
}
