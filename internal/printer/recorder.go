package printer

import (
	"context"
	"sync"

	"github.com/thereceipt/ticketprint/internal/layout"
)

// Recorder is an in-memory Driver that records the directives it is given.
// It backs dry runs and tests.
type Recorder struct {
	mu        sync.Mutex
	buffered  []layout.Directive
	sent      []layout.Directive
	sends     int
	discards  int
	closed    bool
	status    Status
	statusErr error
	failOn    layout.Kind
	failErr   error
	sendErr   error
}

// NewRecorder creates a recorder that reports itself online
func NewRecorder() *Recorder {
	return &Recorder{status: Status{Online: true, Raw: statusFixedBits}}
}

// FailOn makes the recorder return err for every directive of kind
func (r *Recorder) FailOn(kind layout.Kind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn = kind
	r.failErr = err
}

// FailSend makes Send return err
func (r *Recorder) FailSend(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr = err
}

// SetStatus sets what Status returns
func (r *Recorder) SetStatus(s Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
	r.statusErr = err
}

func (r *Recorder) record(d layout.Directive) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil && r.failOn == d.Kind {
		return r.failErr
	}
	r.buffered = append(r.buffered, d)
	return nil
}

func (r *Recorder) SetAlign(align layout.Alignment) error {
	return r.record(layout.Directive{Kind: layout.KindAlign, Align: align})
}

func (r *Recorder) EmitText(line string) error {
	return r.record(layout.Directive{Kind: layout.KindText, Text: line})
}

func (r *Recorder) EmitBarcode(bc layout.Barcode) error {
	return r.record(layout.Directive{Kind: layout.KindBarcode, Barcode: &bc})
}

func (r *Recorder) Feed(lines int) error {
	return r.record(layout.Directive{Kind: layout.KindFeed, Lines: lines})
}

func (r *Recorder) Cut(mode layout.CutMode) error {
	return r.record(layout.Directive{Kind: layout.KindCut, Cut: mode})
}

func (r *Recorder) Send(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, r.buffered...)
	r.buffered = nil
	r.sends++
	return nil
}

func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffered = nil
	r.discards++
}

func (r *Recorder) Status(ctx context.Context) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.statusErr
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Sent returns every directive flushed so far
func (r *Recorder) Sent() []layout.Directive {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]layout.Directive, len(r.sent))
	copy(out, r.sent)
	return out
}

// Buffered returns directives emitted but not yet sent
func (r *Recorder) Buffered() []layout.Directive {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]layout.Directive, len(r.buffered))
	copy(out, r.buffered)
	return out
}

// Sends returns how many times Send succeeded
func (r *Recorder) Sends() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sends
}

// Closed reports whether Close was called
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Discards returns how many times Discard was called
func (r *Recorder) Discards() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discards
}
