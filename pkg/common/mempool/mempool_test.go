// Copyright 2023 OceanStack
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oceanstack/containerkit/pkg/common/cerr"
)

func TestPoolAllocFree(t *testing.T) {
	p, err := NewPool("test-pool-small", 64, 0)
	require.NoError(t, err)
	defer p.Destroy()

	nalloc0 := p.Stats().NumAlloc.Load()
	nfree0 := p.Stats().NumFree.Load()
	require.True(t, nalloc0 == 0, "bad nalloc")
	require.True(t, nfree0 == 0, "bad nfree")

	for i := 0; i < 10000; i++ {
		a, err := p.Alloc()
		require.NoError(t, err)
		require.Equal(t, 64, len(a))
		require.True(t, a[0] == 0 && a[63] == 0, "allocation result not zeroed")
		a[0] = 0xF0
		a[63] = 0xBA
		p.Free(a)
	}

	require.Equal(t, int64(0), p.Stats().NumCurrBytes.Load(), "leak")
	require.Equal(t, p.Stats().NumAlloc.Load(), p.Stats().NumFree.Load())
	require.Equal(t, int64(64), p.Stats().HighWaterMark.Load())
}

func TestPoolCapacity(t *testing.T) {
	// one slab only
	p, err := NewPool("test-pool-capped", 64, 64*blocksPerSlab)
	require.NoError(t, err)
	defer p.Destroy()

	blocks := make([][]byte, 0, blocksPerSlab)
	for i := 0; i < blocksPerSlab; i++ {
		a, err := p.Alloc()
		require.NoError(t, err)
		blocks = append(blocks, a)
	}

	_, err = p.Alloc()
	require.True(t, cerr.IsErrCode(err, cerr.ErrOOM))

	for _, a := range blocks {
		p.Free(a)
	}
	require.Equal(t, int64(0), p.Stats().NumCurrBytes.Load())
}

func TestPoolMisuse(t *testing.T) {
	p, err := NewPool("test-pool-misuse", 32, 0)
	require.NoError(t, err)
	defer p.Destroy()

	a, err := p.Alloc()
	require.NoError(t, err)
	p.Free(a)
	// double free and foreign free are logged, not fatal
	p.Free(a)
	p.Free(make([]byte, 32))
	p.Free(make([]byte, 16))
	require.Equal(t, int64(1), p.Stats().NumFree.Load())
}

func TestPoolZeroesReusedBlocks(t *testing.T) {
	p, err := NewPool("test-pool-zero", 16, 0)
	require.NoError(t, err)
	defer p.Destroy()

	a, err := p.Alloc()
	require.NoError(t, err)
	for i := range a {
		a[i] = 0xFF
	}
	p.Free(a)

	b, err := p.Alloc()
	require.NoError(t, err)
	for i := range b {
		require.Equal(t, byte(0), b[i])
	}
}

func TestPoolInvalidArgs(t *testing.T) {
	_, err := NewPool("bad", 0, 0)
	require.True(t, cerr.IsErrCode(err, cerr.ErrInvalidArg))
	_, err = NewPool("bad", 8, -1)
	require.True(t, cerr.IsErrCode(err, cerr.ErrInvalidArg))
}

func TestClassedAllocator(t *testing.T) {
	c := NewClassedAllocator("test-classed")
	defer c.Destroy()

	sizes := []int{1, 63, 64, 65, 100, 128, 4096, 1 << 20, (1 << 20) + 1}
	for _, size := range sizes {
		blk, err := c.Allocate(size)
		require.NoError(t, err, "size %d", size)
		require.Equal(t, size, len(blk))
		for i := range blk {
			require.Equal(t, byte(0), blk[i])
		}
		blk[0] = 0xAB
		c.Free(blk)
	}

	_, err := c.Allocate(0)
	require.True(t, cerr.IsErrCode(err, cerr.ErrInvalidArg))
	_, err = c.Allocate(-8)
	require.True(t, cerr.IsErrCode(err, cerr.ErrInvalidArg))
}

func TestClassIndex(t *testing.T) {
	require.Equal(t, 0, classIndex(1))
	require.Equal(t, 0, classIndex(64))
	require.Equal(t, 1, classIndex(65))
	require.Equal(t, 1, classIndex(128))
	require.Equal(t, 2, classIndex(129))
}

// pools are shared by containers on different goroutines
func TestPoolForRace(t *testing.T) {
	p, err := NewPool("test-pool-race", 64, 0)
	require.NoError(t, err)
	defer p.Destroy()

	var wg sync.WaitGroup
	run := func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			a, err := p.Alloc()
			if err != nil {
				panic(err)
			}
			p.Free(a)
		}
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go run()
	}
	wg.Wait()
}

func BenchmarkPoolAllocFree(b *testing.B) {
	p := MustNewPool("bench-pool", 64, 0)
	defer p.Destroy()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a, err := p.Alloc()
		if err != nil {
			b.Fatal(err)
		}
		p.Free(a)
	}
}
