package service

import (
	"testing"
	"time"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
)

func snapshot(jobID string, processed int64, status domain.JobStatus) Snapshot {
	return Snapshot{
		JobID:         jobID,
		Status:        status,
		TotalRows:     100,
		ProcessedRows: processed,
		Terminal:      status.Terminal(),
		Timestamp:     time.Now(),
	}
}

func TestPublisherSequencing(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe("job-1")
	defer cancel()

	p.Publish(snapshot("job-1", 10, domain.JobStatusProcessing))
	p.Publish(snapshot("job-1", 20, domain.JobStatusProcessing))
	p.Publish(snapshot("job-1", 100, domain.JobStatusCompleted))

	var last int64
	var got []Snapshot
	for snap := range ch {
		if snap.Seq <= last {
			t.Errorf("sequence went from %d to %d, must be strictly increasing", last, snap.Seq)
		}
		last = snap.Seq
		got = append(got, snap)
	}

	if len(got) != 3 {
		t.Fatalf("received %d snapshots, want 3", len(got))
	}
	final := got[len(got)-1]
	if !final.Terminal || final.Status != domain.JobStatusCompleted {
		t.Errorf("final snapshot = %+v, want terminal completed", final)
	}
}

func TestPublisherLateSubscriberSeesCurrentState(t *testing.T) {
	p := NewPublisher()
	p.Publish(snapshot("job-1", 40, domain.JobStatusProcessing))

	ch, cancel := p.Subscribe("job-1")
	defer cancel()

	select {
	case snap := <-ch:
		if snap.ProcessedRows != 40 {
			t.Errorf("initial snapshot processed = %d, want 40", snap.ProcessedRows)
		}
	default:
		t.Fatal("subscriber did not receive the current snapshot")
	}
}

func TestPublisherTerminalReplay(t *testing.T) {
	p := NewPublisher()
	p.Publish(snapshot("job-1", 50, domain.JobStatusProcessing))
	p.Publish(snapshot("job-1", 100, domain.JobStatusCompleted))

	// Snapshots published after the terminal one are dropped.
	p.Publish(snapshot("job-1", 999, domain.JobStatusProcessing))

	ch, _ := p.Subscribe("job-1")
	var got []Snapshot
	for snap := range ch {
		got = append(got, snap)
	}

	if len(got) != 1 {
		t.Fatalf("post-terminal subscriber received %d snapshots, want exactly the final one", len(got))
	}
	if !got[0].Terminal || got[0].ProcessedRows != 100 {
		t.Errorf("replayed snapshot = %+v, want the terminal state", got[0])
	}
}

func TestPublisherSlowSubscriberKeepsTerminal(t *testing.T) {
	p := NewPublisher()
	ch, cancel := p.Subscribe("job-1")
	defer cancel()

	// Overflow the subscriber buffer without draining it.
	for i := 0; i < subscriberBuffer*3; i++ {
		p.Publish(snapshot("job-1", int64(i), domain.JobStatusProcessing))
	}
	p.Publish(snapshot("job-1", 100, domain.JobStatusCompleted))

	var final Snapshot
	for snap := range ch {
		final = snap
	}
	if !final.Terminal {
		t.Errorf("slow subscriber lost the terminal snapshot, last = %+v", final)
	}
}

func TestPublisherIndependentJobs(t *testing.T) {
	p := NewPublisher()
	ch1, cancel1 := p.Subscribe("job-1")
	defer cancel1()
	ch2, cancel2 := p.Subscribe("job-2")
	defer cancel2()

	p.Publish(snapshot("job-1", 10, domain.JobStatusProcessing))

	select {
	case snap := <-ch1:
		if snap.JobID != "job-1" {
			t.Errorf("job-1 subscriber got snapshot for %q", snap.JobID)
		}
	default:
		t.Error("job-1 subscriber received nothing")
	}
	select {
	case snap := <-ch2:
		t.Errorf("job-2 subscriber received foreign snapshot %+v", snap)
	default:
	}
}

func TestPublisherForget(t *testing.T) {
	p := NewPublisher()
	p.Publish(snapshot("job-1", 100, domain.JobStatusCompleted))
	p.Forget("job-1")

	if _, ok := p.Last("job-1"); ok {
		t.Error("Last returned state for a forgotten job")
	}
}
