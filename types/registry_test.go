package types

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/schema"
)

func buildSchema(t *testing.T, tree string, numeric bool) *schema.Schema {
	t.Helper()

	b := schema.NewBuilder(tree).Text("title", schema.Search())
	if numeric {
		b.Numeric("rating")
	} else {
		b.Keyword("rating")
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestSystemRegistry_Register(t *testing.T) {
	t.Parallel()

	r := NewSystemRegistry()
	s := buildSchema(t, "books", true)

	item, err := r.Register("/data/a.db", s)
	require.NoError(t, err)
	require.Equal(t, "books", item.TreeName)
	require.Equal(t, s.Fingerprint(), item.Fingerprint)
	require.Equal(t, 1, item.Stores)

	item, err = r.Register("/data/a.db", s)
	require.NoError(t, err)
	require.Equal(t, 2, item.Stores)

	// same tree, another schema
	_, err = r.Register("/data/a.db", buildSchema(t, "books", false))
	require.ErrorIs(t, err, fault.ErrTypeRegistered)

	// same tree name in another database is independent
	_, err = r.Register("/data/b.db", buildSchema(t, "books", false))
	require.NoError(t, err)
	require.Len(t, r.Items(), 2)

	r.Unregister("/data/a.db", "books")
	_, err = r.Lookup("/data/a.db", "books")
	require.NoError(t, err)

	r.Unregister("/data/a.db", "books")
	_, err = r.Lookup("/data/a.db", "books")
	require.ErrorIs(t, err, fault.ErrTypeNotFound)
}

func TestSystemRegistry_IndexDirClaims(t *testing.T) {
	t.Parallel()

	r := NewSystemRegistry()
	dir := filepath.Join(t.TempDir(), "idx")

	require.NoError(t, r.ClaimIndexDir(dir, "a"))
	require.ErrorIs(t, r.ClaimIndexDir(dir+"/", "b"), fault.ErrIndexDirClaimed)

	// only the owner releases
	r.ReleaseIndexDir(dir, "b")
	require.ErrorIs(t, r.ClaimIndexDir(dir, "b"), fault.ErrIndexDirClaimed)

	r.ReleaseIndexDir(dir, "a")
	require.NoError(t, r.ClaimIndexDir(dir, "b"))
}

func TestRegistryItem_Marshal(t *testing.T) {
	t.Parallel()

	s := buildSchema(t, "books", true)
	in := RegistryItem{DBPath: "/data/a.db", TreeName: "books", Fingerprint: s.Fingerprint(), Fields: s.Fields(), Stores: 1}

	data, err := in.Marshal()
	require.NoError(t, err)

	var out RegistryItem
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestGetRegistry(t *testing.T) {
	t.Parallel()

	require.Same(t, GetRegistry(), GetRegistry())
}
