package printer

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/thereceipt/ticketprint/internal/layout"
)

// Station owns the single shared printer connection. One job is in flight
// at a time.
type Station struct {
	jobs *JobLog

	mu     sync.Mutex
	driver Driver
	target string

	printMu sync.Mutex
}

// NewStation creates a disconnected station
func NewStation(jobs *JobLog) *Station {
	if jobs == nil {
		jobs = NewJobLog(0)
	}
	return &Station{jobs: jobs}
}

// Jobs returns the job log
func (s *Station) Jobs() *JobLog {
	return s.jobs
}

// Connect adopts driver as the printer connection after checking its
// status. An existing connection is closed first.
func (s *Station) Connect(ctx context.Context, driver Driver, target string) error {
	status, err := driver.Status(ctx)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to verify printer %s: %w", target, err)
	}
	if !status.Online {
		driver.Close()
		return &DriverError{Op: "connect", Code: int(status.Raw), Err: fmt.Errorf("printer %s is offline", target)}
	}

	s.mu.Lock()
	old := s.driver
	s.driver = driver
	s.target = target
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Printf("printer: closing previous connection: %v", err)
		}
	}

	log.Printf("printer: connected to %s", target)
	return nil
}

// Disconnect closes the connection, if any
func (s *Station) Disconnect() error {
	s.mu.Lock()
	driver, target := s.driver, s.target
	s.driver = nil
	s.target = ""
	s.mu.Unlock()

	if driver == nil {
		return nil
	}

	log.Printf("printer: disconnected from %s", target)
	return driver.Close()
}

// Target returns what the station is connected to
func (s *Station) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// IsConnected asks the printer for its status. Connected means the status
// query succeeds and the printer reports itself online.
func (s *Station) IsConnected(ctx context.Context) bool {
	s.mu.Lock()
	driver := s.driver
	s.mu.Unlock()

	if driver == nil {
		return false
	}

	// status shares the connection with printing
	s.printMu.Lock()
	defer s.printMu.Unlock()

	status, err := driver.Status(ctx)
	if err != nil {
		log.Printf("printer: status check failed: %v", err)
		return false
	}
	return status.Online
}

// Print emits docs as one job and sends them once
func (s *Station) Print(ctx context.Context, kind string, docs []layout.Document) (PrintJob, error) {
	s.printMu.Lock()
	defer s.printMu.Unlock()

	s.mu.Lock()
	driver, target := s.driver, s.target
	s.mu.Unlock()

	if driver == nil {
		return PrintJob{}, ErrNotConnected
	}

	job := s.jobs.Start(kind, target, len(docs))
	err := Emit(ctx, driver, docs)
	job = s.jobs.Finish(job.ID, err)

	if err != nil {
		// nothing of a failed job may reach paper with the next one
		driver.Discard()
		log.Printf("printer: job %s (%s) failed: %v", job.ID, kind, err)
		return job, err
	}
	log.Printf("printer: job %s (%s) completed, %d document(s)", job.ID, kind, len(docs))
	return job, nil
}
