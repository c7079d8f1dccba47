package types

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/schema"
)

var _ Registry = (*SystemRegistry)(nil)

// RegistryItem describes one registered tree.
type RegistryItem struct {
	DBPath      string         `json:"dbPath"`
	TreeName    string         `json:"treeName"`
	Fingerprint uint64         `json:"fingerprint"`
	Fields      []schema.Field `json:"fields"`
	Stores      int            `json:"stores"` // open stores using the tree
}

// Marshal serializes the RegistryItem to a byte slice.
func (ri *RegistryItem) Marshal() ([]byte, error) {
	return json.Marshal(ri)
}

// SystemRegistry implements the Registry interface.
type SystemRegistry struct {
	mu    sync.RWMutex // lock
	items map[string]*RegistryItem
	dirs  map[string]string // index dir -> owner
}

// NewSystemRegistry creates and returns a new Registry instance.
func NewSystemRegistry() *SystemRegistry {
	slog.Debug("NewSystemRegistry - create registry")
	return &SystemRegistry{
		items: make(map[string]*RegistryItem),
		dirs:  make(map[string]string),
	}
}

func itemKey(dbPath, tree string) string {
	return dbPath + "#" + tree
}

func (r *SystemRegistry) Register(dbPath string, s *schema.Schema) (*RegistryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := itemKey(dbPath, s.Tree())

	if item, found := r.items[key]; found {
		if item.Fingerprint != s.Fingerprint() {
			return nil, fmt.Errorf("%w: %s", fault.ErrTypeRegistered, s.Tree())
		}
		item.Stores++
		c := *item
		return &c, nil
	}

	item := &RegistryItem{
		DBPath:      dbPath,
		TreeName:    s.Tree(),
		Fingerprint: s.Fingerprint(),
		Fields:      s.Fields(),
		Stores:      1,
	}
	r.items[key] = item

	slog.Debug("SystemRegistry.Register() - register tree", "db", dbPath, "tree", s.Tree(), "fingerprint", s.Fingerprint())

	c := *item
	return &c, nil
}

func (r *SystemRegistry) Unregister(dbPath, tree string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := itemKey(dbPath, tree)
	item, found := r.items[key]
	if !found {
		return
	}

	item.Stores--
	if item.Stores <= 0 {
		delete(r.items, key)
	}
}

func (r *SystemRegistry) Lookup(dbPath, tree string) (*RegistryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, found := r.items[itemKey(dbPath, tree)]
	if !found {
		return nil, fault.ErrTypeNotFound
	}
	c := *item
	return &c, nil
}

func (r *SystemRegistry) Items() []RegistryItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegistryItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		return itemKey(out[i].DBPath, out[i].TreeName) < itemKey(out[j].DBPath, out[j].TreeName)
	})
	return out
}

func (r *SystemRegistry) ClaimIndexDir(dir, owner string) error {
	dir = cleanDir(dir)

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, claimed := r.dirs[dir]; claimed {
		return fmt.Errorf("%w: %s (owner %s)", fault.ErrIndexDirClaimed, dir, current)
	}
	r.dirs[dir] = owner

	slog.Debug("SystemRegistry.ClaimIndexDir() - claimed", "dir", dir, "owner", owner)
	return nil
}

func (r *SystemRegistry) ReleaseIndexDir(dir, owner string) {
	dir = cleanDir(dir)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dirs[dir] == owner {
		delete(r.dirs, dir)
	}
}

func cleanDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}
