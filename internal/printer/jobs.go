package printer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job status values
const (
	JobPrinting  = "printing"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

const defaultJobHistory = 100

// PrintJob is one print request. Jobs are never retried.
type PrintJob struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Target      string    `json:"target"`
	Documents   int       `json:"documents"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// JobLog keeps the most recent print jobs
type JobLog struct {
	jobs  []*PrintJob
	limit int
	mu    sync.Mutex

	onUpdate func(PrintJob)
}

// NewJobLog creates a log holding up to limit jobs
func NewJobLog(limit int) *JobLog {
	if limit <= 0 {
		limit = defaultJobHistory
	}
	return &JobLog{limit: limit}
}

// OnUpdate sets a callback for every job state change
func (l *JobLog) OnUpdate(callback func(PrintJob)) {
	l.mu.Lock()
	l.onUpdate = callback
	l.mu.Unlock()
}

// Start records a new job in the printing state
func (l *JobLog) Start(kind, target string, documents int) PrintJob {
	l.mu.Lock()
	job := &PrintJob{
		ID:        uuid.New().String(),
		Kind:      kind,
		Target:    target,
		Documents: documents,
		Status:    JobPrinting,
		CreatedAt: time.Now(),
	}
	l.jobs = append(l.jobs, job)
	if len(l.jobs) > l.limit {
		l.jobs = l.jobs[len(l.jobs)-l.limit:]
	}
	snapshot, cb := *job, l.onUpdate
	l.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
	return snapshot
}

// Finish marks a job completed, or failed when err is set
func (l *JobLog) Finish(id string, err error) PrintJob {
	l.mu.Lock()
	var snapshot PrintJob
	for _, job := range l.jobs {
		if job.ID == id {
			job.CompletedAt = time.Now()
			if err != nil {
				job.Status = JobFailed
				job.Error = err.Error()
			} else {
				job.Status = JobCompleted
			}
			snapshot = *job
			break
		}
	}
	cb := l.onUpdate
	l.mu.Unlock()

	if cb != nil && snapshot.ID != "" {
		cb(snapshot)
	}
	return snapshot
}

// GetJob returns a job by ID
func (l *JobLog) GetJob(id string) *PrintJob {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, job := range l.jobs {
		if job.ID == id {
			jobCopy := *job
			return &jobCopy
		}
	}
	return nil
}

// GetAllJobs returns all jobs, oldest first
func (l *JobLog) GetAllJobs() []PrintJob {
	l.mu.Lock()
	defer l.mu.Unlock()

	jobs := make([]PrintJob, len(l.jobs))
	for i, job := range l.jobs {
		jobs[i] = *job
	}
	return jobs
}

// ClearCompleted removes completed jobs from the log
func (l *JobLog) ClearCompleted() {
	l.mu.Lock()
	defer l.mu.Unlock()

	filtered := make([]*PrintJob, 0, len(l.jobs))
	for _, job := range l.jobs {
		if job.Status != JobCompleted {
			filtered = append(filtered, job)
		}
	}
	l.jobs = filtered
}
