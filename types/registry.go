package types

import (
	"sync"

	"github.com/guyvdb/dsearch/schema"
)

// Registry tracks the record types opened by stores in this process and
// the index directories they own. A store registers on open and releases
// on close.
type Registry interface {
	// Register records that a store opened tree in the database at dbPath
	// with schema s. Registering an open tree again with a different schema
	// fails with fault.ErrTypeRegistered.
	Register(dbPath string, s *schema.Schema) (*RegistryItem, error)

	// Unregister drops one registration of tree.
	Unregister(dbPath, tree string)

	// Lookup returns the registration of tree.
	Lookup(dbPath, tree string) (*RegistryItem, error)

	// Items lists the registered trees.
	Items() []RegistryItem

	// ClaimIndexDir gives the index directory dir to owner. A directory
	// can only have one owner until it is released.
	ClaimIndexDir(dir, owner string) error

	// ReleaseIndexDir releases a claim made by owner.
	ReleaseIndexDir(dir, owner string)
}

// Global function to return the one and only registry
var (
	registry Registry
	once     sync.Once
)

func GetRegistry() Registry {
	once.Do(func() {
		registry = NewSystemRegistry()
	})
	return registry
}
