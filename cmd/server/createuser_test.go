package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPasswordLine(t *testing.T) {
	got, err := readPasswordLine(strings.NewReader("s3cret pw\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret pw", got)

	got, err = readPasswordLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readPasswordLine(strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestPromptPasswordFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(path, []byte("secret1\n"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out strings.Builder
	got, err := promptPassword(f, &out)
	require.NoError(t, err)
	assert.Equal(t, "secret1", got)
	assert.Empty(t, out.String())
}
