package service

import (
	"sync"
	"time"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
)

// Snapshot is one point-in-time view of a job's progress. Snapshots for a
// job carry a strictly increasing sequence number.
type Snapshot struct {
	Seq           int64            `json:"seq"`
	JobID         string           `json:"job_id"`
	Status        domain.JobStatus `json:"status"`
	TotalRows     int64            `json:"total_rows"`
	ProcessedRows int64            `json:"processed_rows"`
	SuccessRows   int64            `json:"success_rows"`
	FailedRows    int64            `json:"failed_rows"`
	DuplicateRows int64            `json:"duplicate_rows"`
	Percent       float64          `json:"percent"`
	RowsPerSec    float64          `json:"rows_per_sec"`
	FailReason    string           `json:"fail_reason,omitempty"`
	Terminal      bool             `json:"terminal"`
	Timestamp     time.Time        `json:"timestamp"`
}

// subscriberBuffer bounds how far a slow subscriber may lag. When the
// buffer is full the oldest pending snapshot is dropped, so subscribers
// may miss intermediate snapshots but never the terminal one.
const subscriberBuffer = 16

// Publisher fans job progress out to any number of subscribers. Push
// delivery is best-effort; the terminal snapshot is always delivered,
// and subscribers arriving after the end receive exactly the final
// snapshot before their stream closes.
type Publisher struct {
	mu   sync.Mutex
	jobs map[string]*jobStream
}

type jobStream struct {
	seq      int64
	last     *Snapshot
	terminal bool
	subs     map[int]chan Snapshot
	nextSub  int
}

// NewPublisher creates an empty progress publisher.
func NewPublisher() *Publisher {
	return &Publisher{jobs: make(map[string]*jobStream)}
}

// Publish emits a snapshot to all subscribers of the job, assigning it
// the next sequence number. Publishing a terminal snapshot closes every
// subscriber stream after delivery.
func (p *Publisher) Publish(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stream := p.stream(snap.JobID)
	if stream.terminal {
		return // job already finished; late snapshots are dropped
	}

	stream.seq++
	snap.Seq = stream.seq
	stream.last = &snap

	for _, ch := range stream.subs {
		send(ch, snap)
	}

	if snap.Terminal {
		stream.terminal = true
		for id, ch := range stream.subs {
			close(ch)
			delete(stream.subs, id)
		}
	}
}

// Subscribe attaches to a job's progress stream. The current snapshot,
// if any, is delivered first so the subscriber starts from a consistent
// view. For already-finished jobs the channel yields the final snapshot
// and closes. The returned func detaches the subscriber.
func (p *Publisher) Subscribe(jobID string) (<-chan Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stream := p.stream(jobID)
	ch := make(chan Snapshot, subscriberBuffer)

	if stream.last != nil {
		ch <- *stream.last
	}
	if stream.terminal {
		close(ch)
		return ch, func() {}
	}

	id := stream.nextSub
	stream.nextSub++
	stream.subs[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if s, ok := p.jobs[jobID]; ok {
			if sub, ok := s.subs[id]; ok {
				close(sub)
				delete(s.subs, id)
			}
		}
	}
	return ch, cancel
}

// Last returns the most recent snapshot published for a job, if any.
func (p *Publisher) Last(jobID string) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stream, ok := p.jobs[jobID]
	if !ok || stream.last == nil {
		return Snapshot{}, false
	}
	return *stream.last, true
}

// Forget drops a finished job's stream state. Call once no further
// subscribers are expected; the persisted job record remains the pull
// fallback.
func (p *Publisher) Forget(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stream, ok := p.jobs[jobID]; ok {
		for id, ch := range stream.subs {
			close(ch)
			delete(stream.subs, id)
		}
		delete(p.jobs, jobID)
	}
}

func (p *Publisher) stream(jobID string) *jobStream {
	stream, ok := p.jobs[jobID]
	if !ok {
		stream = &jobStream{subs: make(map[int]chan Snapshot)}
		p.jobs[jobID] = stream
	}
	return stream
}

// send delivers without blocking the publisher: when the subscriber's
// buffer is full, the oldest pending snapshot is evicted to make room.
func send(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// SnapshotFromJob builds an unsequenced snapshot from the job's current
// state. The publisher assigns the sequence number on Publish.
func SnapshotFromJob(job *domain.UploadJob) Snapshot {
	return Snapshot{
		JobID:         job.ID,
		Status:        job.Status,
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		SuccessRows:   job.SuccessRows,
		FailedRows:    job.FailedRows,
		DuplicateRows: job.DuplicateRows,
		Percent:       job.PercentComplete(),
		RowsPerSec:    job.RowsPerSec,
		FailReason:    job.FailReason,
		Terminal:      job.Status.Terminal(),
		Timestamp:     time.Now(),
	}
}
