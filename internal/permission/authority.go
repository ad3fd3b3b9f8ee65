package permission

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoPrompt is returned when an answer names a device nobody asked about
var ErrNoPrompt = errors.New("no permission prompt for device")

// Prompt is a permission request waiting for an operator decision
type Prompt struct {
	ID          string    `json:"id"`
	Device      Device    `json:"device"`
	RequestedAt time.Time `json:"requested_at"`
}

// PromptAuthority is an Authority answered by an operator. Requests are
// published to subscribers (dashboard, websocket clients) and decided
// through Answer.
type PromptAuthority struct {
	mu          sync.Mutex
	grants      map[string]bool
	prompts     map[string]Prompt
	receivers   []Receiver
	subscribers map[int]func(Prompt)
	nextSub     int
}

// NewPromptAuthority creates an authority with no grants
func NewPromptAuthority() *PromptAuthority {
	return &PromptAuthority{
		grants:      make(map[string]bool),
		prompts:     make(map[string]Prompt),
		subscribers: make(map[int]func(Prompt)),
	}
}

// HasPermission reports whether device has been granted
func (a *PromptAuthority) HasPermission(device Device) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.grants[device.Name]
}

// RequestPermission publishes a prompt for device
func (a *PromptAuthority) RequestPermission(device Device) error {
	a.mu.Lock()
	prompt := Prompt{
		ID:          uuid.New().String(),
		Device:      device,
		RequestedAt: time.Now(),
	}
	a.prompts[device.Name] = prompt

	subs := make([]func(Prompt), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	if len(subs) == 0 {
		log.Printf("permission: prompt for %s is waiting, nobody is subscribed", device.Name)
	}
	for _, fn := range subs {
		fn(prompt)
	}
	return nil
}

// Register adds a receiver for decisions
func (a *PromptAuthority) Register(r Receiver) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.receivers = append(a.receivers, r)
}

// Unregister removes a receiver
func (a *PromptAuthority) Unregister(r Receiver) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, existing := range a.receivers {
		if existing == r {
			a.receivers = append(a.receivers[:i], a.receivers[i+1:]...)
			return nil
		}
	}
	return ErrUnregisteredReceiver
}

// Answer records the decision for the prompt naming deviceName and delivers
// it to every receiver asynchronously
func (a *PromptAuthority) Answer(deviceName string, granted bool) error {
	a.mu.Lock()
	prompt, ok := a.prompts[deviceName]
	if !ok {
		a.mu.Unlock()
		return ErrNoPrompt
	}
	delete(a.prompts, deviceName)

	if granted {
		a.grants[deviceName] = true
	} else {
		delete(a.grants, deviceName)
	}

	receivers := make([]Receiver, len(a.receivers))
	copy(receivers, a.receivers)
	a.mu.Unlock()

	for _, r := range receivers {
		go r.OnPermissionResult(prompt.Device, granted)
	}
	return nil
}

// Revoke forgets a grant, for example when the device is unplugged. An
// open prompt for the device is answered as denied.
func (a *PromptAuthority) Revoke(deviceName string) {
	a.mu.Lock()
	delete(a.grants, deviceName)
	prompt, open := a.prompts[deviceName]
	if !open {
		a.mu.Unlock()
		return
	}
	delete(a.prompts, deviceName)

	receivers := make([]Receiver, len(a.receivers))
	copy(receivers, a.receivers)
	a.mu.Unlock()

	for _, r := range receivers {
		go r.OnPermissionResult(prompt.Device, false)
	}
}

// Prompts returns the outstanding prompts, oldest first
func (a *PromptAuthority) Prompts() []Prompt {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Prompt, 0, len(a.prompts))
	for _, p := range a.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// Subscribe calls fn for every new prompt until the returned cancel func
// is called. fn must not block.
func (a *PromptAuthority) Subscribe(fn func(Prompt)) (cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++
	a.subscribers[id] = fn

	return func() {
		a.mu.Lock()
		delete(a.subscribers, id)
		a.mu.Unlock()
	}
}
