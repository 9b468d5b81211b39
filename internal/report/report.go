// Package report runs report generation as background jobs. A request
// enqueues immediately and returns a job id; a worker walks the job
// through generating, formatting, and complete, updating a progress
// percentage the status endpoint exposes. Finished reports can be
// exported as standalone HTML or PDF.
package report

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job's lifecycle stage.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusFormatting Status = "formatting"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Job is one report request and its current state. Callers always get
// copies; the queue owns the canonical record.
type Job struct {
	ID         string    `json:"reportId"`
	Topic      string    `json:"topic"`
	UserID     string    `json:"userId,omitempty"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Markdown   string    `json:"markdown,omitempty"`
	HTML       string    `json:"html,omitempty"`
	Model      string    `json:"model,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	DurationMS int64     `json:"durationMs,omitempty"`
}

// Queue is the in-flight job table. It is the only mutable state in
// this package; the worker and the HTTP handlers share one instance.
type Queue struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string

	// nudge wakes the worker ahead of its periodic scan.
	nudge chan struct{}
}

// NewQueue creates an empty job table.
func NewQueue() *Queue {
	return &Queue{
		jobs:  make(map[string]*Job),
		nudge: make(chan struct{}, 1),
	}
}

// Enqueue registers a new job in the queued state and returns its
// snapshot.
func (q *Queue) Enqueue(topic, userID string) Job {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Topic:     topic,
		UserID:    userID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	select {
	case q.nudge <- struct{}{}:
	default:
	}
	return *job
}

// Get returns a snapshot of one job.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of every job in insertion order.
func (q *Queue) List() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.jobs[id])
	}
	return out
}

// Len reports the number of jobs in the table.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// claim moves the oldest queued job to generating and returns its
// snapshot. ok is false when nothing is queued.
func (q *Queue) claim() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		job := q.jobs[id]
		if job.Status == StatusQueued {
			job.Status = StatusGenerating
			job.Progress = 15
			job.UpdatedAt = time.Now().UTC()
			return *job, true
		}
	}
	return Job{}, false
}

// update applies fn to one job under the lock.
func (q *Queue) update(id string, fn func(*Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = time.Now().UTC()
	}
}
