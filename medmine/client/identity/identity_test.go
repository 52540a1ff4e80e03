package identity

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStorage struct {
	sets int
}

func (b *brokenStorage) Get(string) (string, bool, error) { return "", false, errors.New("disk gone") }
func (b *brokenStorage) Set(string, string) error {
	b.sets++
	return errors.New("disk gone")
}

type countingStorage struct {
	*MemoryStorage
	sets int
}

func (c *countingStorage) Set(k, v string) error {
	c.sets++
	return c.MemoryStorage.Set(k, v)
}

func TestGetOrCreateSessionID_Stable(t *testing.T) {
	storage := &countingStorage{MemoryStorage: NewMemoryStorage()}
	s := NewStore(storage)

	first := s.GetOrCreateSessionID()
	require.NotEmpty(t, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.GetOrCreateSessionID())
	}
	assert.Equal(t, 1, storage.sets, "one write per process lifetime")
}

func TestGetOrCreateSessionID_ReusesPersistedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medmine", "state.yaml")

	first := NewStore(NewFileStorage(path)).GetOrCreateSessionID()
	second := NewStore(NewFileStorage(path)).GetOrCreateSessionID()
	assert.Equal(t, first, second)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), SessionKey)
}

func TestGetOrCreateSessionID_StorageFailureFallsBackToMemory(t *testing.T) {
	storage := &brokenStorage{}
	s := NewStore(storage, WithGenerator(func() (string, error) { return "mem-1", nil }))

	assert.Equal(t, "mem-1", s.GetOrCreateSessionID())
	assert.Equal(t, "mem-1", s.GetOrCreateSessionID())
	assert.Equal(t, 1, storage.sets)
}

func TestGetOrCreateSessionID_NilStorage(t *testing.T) {
	s := NewStore(nil)
	id := s.GetOrCreateSessionID()
	assert.Len(t, id, 36)
	assert.Equal(t, id, s.GetOrCreateSessionID())
}

func TestGetOrCreateSessionID_Concurrent(t *testing.T) {
	s := NewStore(NewMemoryStorage())
	ids := make([]string, 16)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = s.GetOrCreateSessionID()
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestFileStorage_CorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml [\n"), 0o600))

	_, _, err := NewFileStorage(path).Get(SessionKey)
	assert.Error(t, err)
}
