package permission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPromptAuthority_EndToEnd(t *testing.T) {
	dev := printer(1, 7, epson)
	auth := NewPromptAuthority()
	b := NewBroker(&fakeLister{devices: []Device{dev}}, auth)
	defer b.Close()

	prompts := make(chan Prompt, 1)
	cancel := auth.Subscribe(func(p Prompt) { prompts <- p })
	defer cancel()

	ch := requestAsync(b, context.Background())

	p := <-prompts
	if p.Device.Name != dev.Name || p.ID == "" {
		t.Fatalf("Unexpected prompt %+v", p)
	}
	if got := auth.Prompts(); len(got) != 1 {
		t.Errorf("Expected 1 outstanding prompt, got %d", len(got))
	}

	if err := auth.Answer(dev.Name, true); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	r := waitResult(t, ch)
	if r.err != nil || r.outcome != Granted {
		t.Fatalf("RequestPermission() = %v, %v", r.outcome, r.err)
	}
	if !auth.HasPermission(dev) {
		t.Error("Grant should be remembered")
	}

	outcome, err := b.RequestPermission(context.Background(), epson)
	if err != nil || outcome != AlreadyGranted {
		t.Errorf("Second request = %v, %v; want AlreadyGranted", outcome, err)
	}

	auth.Revoke(dev.Name)
	if auth.HasPermission(dev) {
		t.Error("Revoke should forget the grant")
	}
}

func TestPromptAuthority_AnswerUnknown(t *testing.T) {
	auth := NewPromptAuthority()
	if err := auth.Answer("/dev/bus/usb/009/009", true); !errors.Is(err, ErrNoPrompt) {
		t.Errorf("Expected ErrNoPrompt, got %v", err)
	}
}

func TestPromptAuthority_Unregister(t *testing.T) {
	auth := NewPromptAuthority()
	b := &Broker{}
	if err := auth.Unregister(b); !errors.Is(err, ErrUnregisteredReceiver) {
		t.Errorf("Expected ErrUnregisteredReceiver, got %v", err)
	}

	auth.Register(b)
	if err := auth.Unregister(b); err != nil {
		t.Errorf("Unregister() error = %v", err)
	}
}

func TestPromptAuthority_Denied(t *testing.T) {
	dev := printer(1, 8, epson)
	auth := NewPromptAuthority()
	b := NewBroker(&fakeLister{devices: []Device{dev}}, auth)

	resolved := make(chan bool, 1)
	b.OnResolved(func(d Device, granted bool) { resolved <- granted })

	prompts := make(chan Prompt, 1)
	auth.Subscribe(func(p Prompt) { prompts <- p })

	ch := requestAsync(b, context.Background())
	<-prompts
	if err := auth.Answer(dev.Name, false); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if r := waitResult(t, ch); r.outcome != Denied {
		t.Errorf("Outcome = %v, want Denied", r.outcome)
	}
	if granted := <-resolved; granted {
		t.Error("OnResolved should report the denial")
	}
	if auth.HasPermission(dev) {
		t.Error("Denied device should not be granted")
	}
}

func TestPromptAuthority_RevokeAnswersOpenPrompt(t *testing.T) {
	dev := printer(1, 8, epson)
	auth := NewPromptAuthority()
	b := NewBroker(&fakeLister{devices: []Device{dev}}, auth)
	defer b.Close()

	prompts := make(chan Prompt, 2)
	cancel := auth.Subscribe(func(p Prompt) { prompts <- p })
	defer cancel()

	ch := requestAsync(b, context.Background())
	<-prompts

	// unplugged while the operator is still deciding
	auth.Revoke(dev.Name)

	r := waitResult(t, ch)
	if r.err != nil || r.outcome != Denied {
		t.Fatalf("RequestPermission() = %v, %v; want Denied", r.outcome, r.err)
	}
	if _, pending := b.Pending(); pending {
		t.Error("Revoke should free the pending slot")
	}
	if len(auth.Prompts()) != 0 {
		t.Error("Revoke should drop the prompt")
	}

	// the device is back and can be asked for again
	ch = requestAsync(b, context.Background())
	<-prompts
	if err := auth.Answer(dev.Name, true); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if r := waitResult(t, ch); r.err != nil || r.outcome != Granted {
		t.Errorf("Second request = %v, %v; want Granted", r.outcome, r.err)
	}
}

func TestPromptAuthority_RevokeWithoutPrompt(t *testing.T) {
	auth := NewPromptAuthority()
	rec := &countingReceiver{}
	auth.Register(rec)

	auth.Revoke("/dev/bus/usb/001/009")
	time.Sleep(20 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("Revoke without an open prompt should not deliver a result")
	}
}

type countingReceiver struct {
	mu sync.Mutex
	n  int
}

func (c *countingReceiver) OnPermissionResult(Device, bool) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingReceiver) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
