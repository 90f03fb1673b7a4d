package util

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.crx")
	require.NoError(t, os.WriteFile(src, []byte("package bytes"), 0640))

	dst := filepath.Join(dir, "nested", "store", "dst.crx")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "package bytes", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")

	// overwrite in place
	require.NoError(t, os.WriteFile(src, []byte("v2"), 0640))
	require.NoError(t, CopyFile(src, dst))
	data, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestCopyFileErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "out")))
	assert.Error(t, CopyFile(dir, filepath.Join(dir, "out")))
	assert.False(t, FileExists(filepath.Join(dir, "out")))
}

func TestSamePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.crx")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.True(t, SamePath(file, filepath.Join(dir, ".", "a.crx")))
	assert.False(t, SamePath(file, filepath.Join(dir, "b.crx")))
	assert.True(t, SamePath(filepath.Join(dir, "x"), filepath.Join(dir, "y", "..", "x")))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(""))
	assert.False(t, FileExists(filepath.Join(dir, "b")))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", OrDash(""))
	assert.Equal(t, "x", OrDash("x"))
	assert.Equal(t, "-", JoinOrDash())
	assert.Equal(t, "-", JoinOrDash("", ""))
	assert.Equal(t, "a, c", JoinOrDash("a", "", "c"))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab…", Truncate("abcd", 3))
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
}

func TestPrintPrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	pterm.SetDefaultOutput(&buf)
	t.Cleanup(func() { pterm.SetDefaultOutput(os.Stdout) })

	require.NoError(t, PrintPrettyJSON(map[string]string{"name": "Tabs & <Windows>"}))
	assert.Equal(t, "{\n  \"name\": \"Tabs & <Windows>\"\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, PrintPrettyJSON([]string{}))
	assert.Equal(t, "[]\n", buf.String())
}
