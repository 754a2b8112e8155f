package crew

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAttachmentStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewAttachmentStore(dir, nil)
	require.NoError(t, err)
	store.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	record, added, err := store.Add("thread_a", "my data (v2).csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, "my data (v2).csv", record.DisplayName)
	require.Len(t, record.ContentHash, 64)
	base := filepath.Base(record.Path)
	require.True(t, strings.HasPrefix(base, "my_data_v2_20250301_093000_"), base)
	require.True(t, strings.HasSuffix(base, ".csv"))
	data, err := os.ReadFile(record.Path)
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(data))

	t.Run("duplicate content is dropped", func(t *testing.T) {
		again, added, err := store.Add("thread_a", "copy.csv", strings.NewReader("a,b\n1,2\n"))
		require.NoError(t, err)
		require.False(t, added)
		require.Equal(t, record, again)
		require.Len(t, store.Files("thread_a"), 1)
	})

	t.Run("same content on another thread", func(t *testing.T) {
		_, added, err := store.Add("thread_b", "copy.csv", strings.NewReader("a,b\n1,2\n"))
		require.NoError(t, err)
		require.True(t, added)
	})

	t.Run("index survives reopen", func(t *testing.T) {
		reopened, err := NewAttachmentStore(dir, nil)
		require.NoError(t, err)
		require.Equal(t, store.Files("thread_a"), reopened.Files("thread_a"))
	})

	t.Run("clear detaches files", func(t *testing.T) {
		require.NoError(t, store.Clear("thread_b"))
		require.Empty(t, store.Files("thread_b"))
		require.Len(t, store.Files("thread_a"), 1)
	})

	t.Run("oversized files are rejected", func(t *testing.T) {
		big := bytes.NewReader(make([]byte, MaxAttachmentSize+1))
		_, _, err := store.Add("thread_a", "big.bin", big)
		require.ErrorContains(t, err, "exceeds")
		leftovers, err := filepath.Glob(filepath.Join(dir, ".upload-*"))
		require.NoError(t, err)
		require.Empty(t, leftovers)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := store.AddFile("thread_a", filepath.Join(dir, "missing.txt"))
		require.Error(t, err)
	})
}

func TestHumanMessageFiles(t *testing.T) {
	require.Equal(t, "hello", NewHumanMessage("hello").Prompt())

	one := NewHumanMessage("hello", Paths([]FileRecord{{Path: "/tmp/a.csv"}})...)
	require.Equal(t, "hello", one.Text())
	require.Equal(t, []string{"/tmp/a.csv"}, one.Files())
	require.Equal(t, "hello\n\nUploaded file: /tmp/a.csv", one.Prompt())

	two := NewHumanMessage("hello", "/tmp/a.csv", "/tmp/b.csv")
	require.Equal(t, "hello\n\nUploaded files:\n- /tmp/a.csv\n- /tmp/b.csv", two.Prompt())
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "my_data_v2", sanitizeFilename("my data (v2)"))
	require.Equal(t, "", sanitizeFilename("***"))
}
