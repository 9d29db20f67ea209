// Copyright 2022 Metrika Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package discover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"objsetstat/pkg/kstat"
	"objsetstat/pkg/selection"

	"github.com/stretchr/testify/require"
)

func writeObjset(t *testing.T, root, pool, file, dataset string) {
	t.Helper()
	dir := filepath.Join(root, pool)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	content := "27 1 0x01 7 2160 5214256498 1254526834417\nname type data\n"
	if dataset != "" {
		content += "dataset_name 7 " + dataset + "\n"
	}
	content += "writes 4 1\nnwritten 4 4096\nreads 4 2\nnread 4 8192\nnunlinks 4 0\nnunlinked 4 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
}

func kstatTree(t *testing.T) string {
	root := t.TempDir()
	writeObjset(t, root, "tank", "objset-0x36", "tank")
	writeObjset(t, root, "tank", "objset-0x102", "tank/home/alice")
	writeObjset(t, root, "tank", "objset-0x81", "tank/home")
	writeObjset(t, root, "rpool", "objset-0x1", "rpool")

	// pool directory without objsets, and unrelated kstats
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tank", "io"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "arcstats"), []byte("x"), 0o644))

	return root
}

func TestPools(t *testing.T) {
	root := kstatTree(t)

	pools, err := Pools(root)
	require.NoError(t, err)
	require.Equal(t, []string{"rpool", "tank"}, pools)

	_, err = Pools(filepath.Join(root, "missing"))
	require.Error(t, err)
}

func TestObjsets_OrderedByID(t *testing.T) {
	root := kstatTree(t)

	objsets, err := Objsets(root, "tank")
	require.NoError(t, err)

	var files []string
	for _, c := range objsets {
		require.Equal(t, "tank", c.Pool)
		files = append(files, filepath.Base(c.Path))
	}
	require.Equal(t, []string{"objset-0x36", "objset-0x81", "objset-0x102"}, files)
}

func TestCandidates(t *testing.T) {
	root := kstatTree(t)

	t.Run("all pools", func(t *testing.T) {
		c, err := Candidates(root, nil)
		require.NoError(t, err)
		require.Len(t, c, 4)
		require.Equal(t, "rpool", c[0].Pool)
	})

	t.Run("selected pools keep argument order", func(t *testing.T) {
		c, err := Candidates(root, []string{"tank", "rpool"})
		require.NoError(t, err)
		require.Len(t, c, 4)
		require.Equal(t, "tank", c[0].Pool)
		require.Equal(t, "rpool", c[3].Pool)
	})

	t.Run("no objsets", func(t *testing.T) {
		_, err := Candidates(root, []string{"empty"})
		require.ErrorIs(t, err, ErrNoObjsets)
	})

	t.Run("unknown pool", func(t *testing.T) {
		_, err := Candidates(root, []string{"nope"})
		require.Error(t, err)
	})
}

func TestUniverse(t *testing.T) {
	root := kstatTree(t)
	writeObjset(t, root, "tank", "objset-0x200", "tank/home")
	writeObjset(t, root, "tank", "objset-0x300", "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "tank", "objset-0x400"), []byte("garbage\n"), 0o644))

	c, err := Candidates(root, []string{"tank"})
	require.NoError(t, err)
	require.Len(t, c, 6)

	universe := Universe(c)
	require.Equal(t, []string{"tank", "tank/home", "tank/home/alice"}, selection.Names(universe))
	for _, s := range universe {
		require.True(t, s.Ready())
		_, ok := s.Rates()
		require.False(t, ok)
	}
	require.Equal(t, kstat.FileSource(filepath.Join(root, "tank", "objset-0x81")), universe[1].Source())
}

func TestWaitForPool(t *testing.T) {
	root := kstatTree(t)
	ctx := context.Background()

	require.NoError(t, WaitForPool(ctx, root, "tank", 0))
	require.Error(t, WaitForPool(ctx, root, "late", 0))

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = os.MkdirAll(filepath.Join(root, "late"), 0o755)
	}()
	require.NoError(t, WaitForPool(ctx, root, "late", 10*time.Second))

	err := WaitForPool(ctx, root, "never", 300*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "pool never")
}

func TestObjsetLess(t *testing.T) {
	tests := []struct {
		a, b string
		exp  bool
	}{
		{"objset-0x36", "objset-0x102", true},
		{"objset-0x102", "objset-0x36", false},
		{"objset-0xzz", "objset-0x36", false},
		{"objset-0x1", "objset-0x1", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s<%s", tt.a, tt.b), func(t *testing.T) {
			require.Equal(t, tt.exp, objsetLess(tt.a, tt.b))
		})
	}
}
