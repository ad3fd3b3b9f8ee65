// Package registry keeps stable IDs and friendly names for printers
package registry

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/thereceipt/ticketprint/internal/permission"
)

// Identity kinds
const (
	KindUSB     = "usb"
	KindSerial  = "serial"
	KindNetwork = "network"
)

// Registry maps printer identities to IDs and custom names. Permission
// state is never stored here.
type Registry struct {
	filePath string
	data     map[string]*Entry
	mu       sync.RWMutex
}

// Entry is the persisted record of one printer
type Entry struct {
	ID          string `json:"id"`
	IdentityKey string `json:"identity_key"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Name        string `json:"name,omitempty"` // Custom user-set name
}

// Identity is what makes a printer recognisable across restarts
type Identity struct {
	Kind        string
	VendorID    uint16
	ProductID   uint16
	Device      string
	Host        string
	Port        int
	Description string
}

// Key returns the registry key for an identity
func (i Identity) Key() string {
	switch i.Kind {
	case KindUSB:
		if i.VendorID != 0 && i.ProductID != 0 {
			return fmt.Sprintf("usb:%04X:%04X", i.VendorID, i.ProductID)
		}
	case KindSerial:
		if i.Device != "" {
			return fmt.Sprintf("serial:%s", i.Device)
		}
	case KindNetwork:
		if i.Host != "" {
			return fmt.Sprintf("network:%s:%d", i.Host, i.Port)
		}
	}

	hash := md5.Sum([]byte(i.Description))
	return fmt.Sprintf("hash:%x", hash)
}

// New opens the registry at filePath. A missing file is created on first save.
func New(filePath string) (*Registry, error) {
	r := &Registry{
		filePath: filePath,
		data:     make(map[string]*Entry),
	}

	if err := r.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	return r, nil
}

// ID gets or creates the ID for a printer
func (r *Registry) ID(identity Identity) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identity.Key()
	if entry, exists := r.data[key]; exists {
		return entry.ID
	}

	entry := &Entry{
		ID:          uuid.New().String(),
		IdentityKey: key,
		Kind:        identity.Kind,
		Description: identity.Description,
	}
	r.data[key] = entry
	r.persist()

	return entry.ID
}

// Name returns the custom name of a printer, or ""
func (r *Registry) Name(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry := r.find(id); entry != nil {
		return entry.Name
	}
	return ""
}

// SetName sets the custom name of a printer
func (r *Registry) SetName(id, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.find(id)
	if entry == nil {
		return false
	}
	entry.Name = name
	r.persist()
	return true
}

// Get returns a copy of a printer's entry
func (r *Registry) Get(id string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry := r.find(id); entry != nil {
		entryCopy := *entry
		return &entryCopy
	}
	return nil
}

// Remove forgets a printer
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.data {
		if entry.ID == id {
			delete(r.data, key)
			r.persist()
			return true
		}
	}
	return false
}

// All returns every entry sorted by identity key
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.data))
	for _, entry := range r.data {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].IdentityKey < entries[j].IdentityKey
	})
	return entries
}

// Label fills in the ID and alias of an enumerated USB device
func (r *Registry) Label(d *permission.Device) {
	d.ID = r.ID(Identity{
		Kind:        KindUSB,
		VendorID:    d.VendorID,
		ProductID:   d.ProductID,
		Description: d.Description,
	})
	d.Alias = r.Name(d.ID)
}

func (r *Registry) find(id string) *Entry {
	for _, entry := range r.data {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

// persist saves with the lock held; failures only cost the names
func (r *Registry) persist() {
	if err := r.save(); err != nil {
		log.Printf("registry: failed to save %s: %v", r.filePath, err)
	}
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &r.data)
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(r.filePath, data, 0644)
}
