package printer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/thereceipt/ticketprint/internal/layout"
	"github.com/thereceipt/ticketprint/internal/permission"
)

func TestStation_PrintNotConnected(t *testing.T) {
	s := NewStation(nil)
	if _, err := s.Print(context.Background(), "test", []layout.Document{sampleDoc()}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Print() error = %v, want ErrNotConnected", err)
	}
	if s.IsConnected(context.Background()) {
		t.Error("New station should not be connected")
	}
}

func TestStation_ConnectAndPrint(t *testing.T) {
	jobs := NewJobLog(10)
	var updates []PrintJob
	jobs.OnUpdate(func(j PrintJob) { updates = append(updates, j) })

	s := NewStation(jobs)
	rec := NewRecorder()
	if err := s.Connect(context.Background(), rec, "recorder"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !s.IsConnected(context.Background()) {
		t.Fatal("Station should be connected")
	}

	job, err := s.Print(context.Background(), "receipt", []layout.Document{sampleDoc()})
	if err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if job.Status != JobCompleted || job.Target != "recorder" || job.Documents != 1 {
		t.Errorf("Unexpected job %+v", job)
	}
	if len(updates) != 2 || updates[0].Status != JobPrinting {
		t.Errorf("Unexpected job updates %+v", updates)
	}
	if got := jobs.GetJob(job.ID); got == nil || got.Status != JobCompleted {
		t.Errorf("GetJob() = %+v", got)
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if !rec.Closed() {
		t.Error("Driver should be closed on disconnect")
	}
	if s.IsConnected(context.Background()) {
		t.Error("Station should be disconnected")
	}
}

func TestStation_ConnectOffline(t *testing.T) {
	rec := NewRecorder()
	rec.SetStatus(Status{Online: false, Raw: 0x1E}, nil)

	s := NewStation(nil)
	err := s.Connect(context.Background(), rec, "recorder")
	var de *DriverError
	if !errors.As(err, &de) || de.Code != 0x1E {
		t.Fatalf("Connect() error = %v, want DriverError with status", err)
	}
	if !rec.Closed() {
		t.Error("Rejected driver should be closed")
	}
}

func TestStation_ReplacesConnection(t *testing.T) {
	s := NewStation(nil)
	first, second := NewRecorder(), NewRecorder()

	if err := s.Connect(context.Background(), first, "one"); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(context.Background(), second, "two"); err != nil {
		t.Fatal(err)
	}
	if !first.Closed() {
		t.Error("Previous connection should be closed")
	}
	if s.Target() != "two" {
		t.Errorf("Target = %q", s.Target())
	}
}

func TestStation_FailedJobNotRetried(t *testing.T) {
	s := NewStation(nil)
	rec := NewRecorder()
	rec.FailSend(&DriverError{Op: "send", Code: 7})
	if err := s.Connect(context.Background(), rec, "recorder"); err != nil {
		t.Fatal(err)
	}

	job, err := s.Print(context.Background(), "tickets", []layout.Document{sampleDoc()})
	var de *DriverError
	if !errors.As(err, &de) || de.Code != 7 {
		t.Fatalf("Print() error = %v", err)
	}
	if job.Status != JobFailed || job.Error == "" {
		t.Errorf("Unexpected job %+v", job)
	}
	if len(s.Jobs().GetAllJobs()) != 1 {
		t.Error("Failed job should not be retried")
	}
	if rec.Discards() != 1 {
		t.Errorf("Discards() = %d, want 1", rec.Discards())
	}
}

func TestStation_AbortedJobNeverReachesPaper(t *testing.T) {
	conn := &fakeConn{reply: []byte{0x16}}
	s := NewStation(nil)
	if err := s.Connect(context.Background(), NewEscposDriver(conn), "fake"); err != nil {
		t.Fatal(err)
	}

	broken := layout.Document{
		{Kind: layout.KindAlign, Align: layout.AlignCenter},
		{Kind: layout.KindText, Text: "ABORTED"},
		{Kind: layout.KindBarcode},
		{Kind: layout.KindCut, Cut: layout.CutFeed},
	}
	if _, err := s.Print(context.Background(), "tickets", []layout.Document{broken}); err == nil {
		t.Fatal("Expected the broken document to fail")
	}

	if _, err := s.Print(context.Background(), "tickets", []layout.Document{sampleDoc()}); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	out := conn.written.Bytes()
	if bytes.Contains(out, []byte("ABORTED")) {
		t.Errorf("Aborted job text was sent with the next job: %q", out)
	}
	if !bytes.Contains(out, []byte("HELLO\n")) {
		t.Errorf("Expected the second job on the wire, got %q", out)
	}
}

func TestStation_RecoversAfterWriteError(t *testing.T) {
	conn := &fakeConn{reply: []byte{0x16}}
	s := NewStation(nil)
	if err := s.Connect(context.Background(), NewEscposDriver(conn), "fake"); err != nil {
		t.Fatal(err)
	}

	conn.writeErr = errors.New("broken pipe")
	if _, err := s.Print(context.Background(), "receipt", []layout.Document{sampleDoc()}); err == nil {
		t.Fatal("Expected the write error to fail the job")
	}

	conn.writeErr = nil
	if _, err := s.Print(context.Background(), "receipt", []layout.Document{sampleDoc()}); err != nil {
		t.Fatalf("Print() after a write error = %v", err)
	}
	if got := bytes.Count(conn.written.Bytes(), []byte("HELLO\n")); got != 1 {
		t.Errorf("Expected one copy of the text, got %d", got)
	}
}

func TestJobLog_Limit(t *testing.T) {
	jobs := NewJobLog(2)
	for i := 0; i < 3; i++ {
		j := jobs.Start("test", "", 1)
		jobs.Finish(j.ID, nil)
	}
	if got := len(jobs.GetAllJobs()); got != 2 {
		t.Errorf("Expected 2 jobs kept, got %d", got)
	}

	jobs.Start("test", "", 1)
	jobs.ClearCompleted()
	all := jobs.GetAllJobs()
	if len(all) != 1 || all[0].Status != JobPrinting {
		t.Errorf("Unexpected jobs after ClearCompleted: %+v", all)
	}
}

type scriptedLister struct {
	scans [][]permission.Device
	i     int
}

func (l *scriptedLister) Devices(ctx context.Context) ([]permission.Device, error) {
	if l.i >= len(l.scans) {
		return l.scans[len(l.scans)-1], nil
	}
	d := l.scans[l.i]
	l.i++
	return d, nil
}

func TestMonitor_AddedAndRemoved(t *testing.T) {
	epson := permission.Device{VendorID: 0x04B8, Name: permission.DeviceName(1, 2)}
	other := permission.Device{VendorID: 0x1234, Name: permission.DeviceName(1, 3)}

	lister := &scriptedLister{scans: [][]permission.Device{
		{other},
		{epson, other},
		{other},
	}}
	m := NewMonitor(lister, 0x04B8, 0)

	var added, removed []string
	m.OnAdded(func(d permission.Device) { added = append(added, d.Name) })
	m.OnRemoved(func(d permission.Device) { removed = append(removed, d.Name) })

	m.checkChanges()
	m.checkChanges()
	m.checkChanges()

	if len(added) != 1 || added[0] != epson.Name {
		t.Errorf("added = %v", added)
	}
	if len(removed) != 1 || removed[0] != epson.Name {
		t.Errorf("removed = %v", removed)
	}
}
