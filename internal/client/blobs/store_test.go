package blobs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return s
}

func TestPut_ContentAddressed(t *testing.T) {
	s := newStore(t)

	ref, size, err := s.Put(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, cryptox.DigestBytes([]byte("hello")), ref)
	assert.Equal(t, int64(5), size)

	_, err = os.Stat(filepath.Join(s.Root(), ref[0:2], ref[2:4], ref))
	require.NoError(t, err)

	f, err := s.Open(ref)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestPut_Deduplicates(t *testing.T) {
	s := newStore(t)

	ref1, _, err := s.Put(strings.NewReader("same"))
	require.NoError(t, err)
	ref2, _, err := s.Put(strings.NewReader("same"))
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	// во временной директории не остаётся мусора
	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "incoming-"), "leftover %s", e.Name())
	}
}

func TestOpen_Missing(t *testing.T) {
	s := newStore(t)
	_, err := s.Open(cryptox.DigestBytes([]byte("nope")))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestInvalidRef(t *testing.T) {
	s := newStore(t)
	_, err := s.Open("../../secret")
	require.Error(t, err)
	require.Error(t, s.Delete("x"))
	_, err = s.Has("")
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ref, _, err := s.Put(strings.NewReader("bye"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ref))
	ok, err := s.Has(ref)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = os.Stat(filepath.Join(s.Root(), ref[0:2]))
	assert.True(t, os.IsNotExist(err), "empty shard dirs are pruned")

	require.NoError(t, s.Delete(ref), "deleting twice is fine")
}
