package fileutils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	current := filepath.Join(dir, "current")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(current, []byte("new"), 0o644))

	require.NoError(t, ReplaceFile(current, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.NoFileExists(t, current)
}

func TestReplaceFile_Concurrent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("initial"), 0o644))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		src := filepath.Join(dir, fmt.Sprintf("current%d", i))
		require.NoError(t, os.WriteFile(src, []byte(fmt.Sprintf("v%d", i)), 0o644))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ReplaceFile(src, target)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, []string{"v0", "v1", "v2", "v3"}, string(data))
}
