package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExists(t *testing.T) {
	s := setupTestStore(t)
	assert.False(t, s.Exists("F.txt"))

	require.NoError(t, s.Create("F.txt"))
	assert.True(t, s.Exists("F.txt"))

	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub"), 0o755))
	assert.False(t, s.Exists("sub"), "directories are not replicated files")
}

func TestAppend(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Create("F.txt"))

	require.NoError(t, s.Append("F.txt", "line-A"))
	require.NoError(t, s.Append("F.txt", "line|with|delims"))
	require.NoError(t, s.Append("F.txt", ""))

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "F.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line-A\nline|with|delims\n\n", string(raw))

	lines, err := s.Lines("F.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"line-A", "line|with|delims", ""}, lines)
}

func TestAppendCreatesMissingFile(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Append("new.txt", "x"))
	assert.True(t, s.Exists("new.txt"))
}

func TestInvalidNames(t *testing.T) {
	s := setupTestStore(t)
	for _, name := range []string{"", ".", "..", "../escape.txt", "a/b.txt", `a\b.txt`, "/etc/passwd"} {
		assert.ErrorIs(t, s.Append(name, "x"), ErrInvalidName, "Append(%q)", name)
		assert.False(t, s.Exists(name), "Exists(%q)", name)
		_, err := s.Lines(name)
		assert.ErrorIs(t, err, ErrInvalidName, "Lines(%q)", name)
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Create("F.txt"))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, s.Append("F.txt", fmt.Sprintf("writer-%d-line-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	lines, err := s.Lines("F.txt")
	require.NoError(t, err)
	assert.Len(t, lines, 400)

	seen := make(map[string]bool)
	for _, l := range lines {
		assert.False(t, seen[l], "duplicate or torn line %q", l)
		seen[l] = true
	}
}

func TestTruncateAll(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Append("a.txt", "1"))
	require.NoError(t, s.Append("b.txt", "2"))
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "keep"), 0o755))

	require.NoError(t, s.TruncateAll())

	for _, name := range []string{"a.txt", "b.txt"} {
		assert.True(t, s.Exists(name), "truncation keeps %s", name)
		lines, err := s.Lines(name)
		require.NoError(t, err)
		assert.Empty(t, lines)
	}
}
