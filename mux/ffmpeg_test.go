package mux

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg concatenates its two inputs into the output file.
const fakeFFmpeg = `#!/bin/sh
in1=""
in2=""
out=""
while [ $# -gt 0 ]; do
	case "$1" in
	-i)
		if [ -z "$in1" ]; then in1="$2"; else in2="$2"; fi
		shift 2
		;;
	*)
		out="$1"
		shift
		;;
	esac
done
cat "$in1" "$in2" > "$out"
`

const brokenFFmpeg = `#!/bin/sh
echo "Invalid data found when processing input" >&2
exit 1
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestMerge(t *testing.T) {
	f := New(writeScript(t, fakeFFmpeg))
	f.TmpDir = t.TempDir()

	out, err := f.Merge(context.Background(), []byte("video"), []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, "videoaudio", string(out))

	// the work directory is gone
	entries, err := os.ReadDir(f.TmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMergeFailure(t *testing.T) {
	f := New(writeScript(t, brokenFFmpeg))

	_, err := f.Merge(context.Background(), []byte("video"), []byte("audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestMergeMissingBinary(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := f.Merge(context.Background(), []byte("video"), []byte("audio"))
	assert.Error(t, err)
}
