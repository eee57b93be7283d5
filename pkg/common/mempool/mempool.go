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

// Package mempool provides fixed-block allocators. A Pool hands out
// zeroed byte blocks of a single size carved from larger slabs; the
// classed Allocator routes power-of-two sized requests to a set of
// pools and serves everything else from the Go heap.
package mempool

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/oceanstack/containerkit/pkg/common/cerr"
	"github.com/oceanstack/containerkit/pkg/common/logutil"
)

const (
	blocksPerSlab = 128
)

// Stats carries the allocation counters of one pool.
type Stats struct {
	NumAlloc      atomic.Int64
	NumFree       atomic.Int64
	NumCurrBytes  atomic.Int64
	HighWaterMark atomic.Int64
}

// Pool is a fixed-block allocator. Every Alloc returns a zeroed block of
// exactly the pool's block size. Pools are safe for concurrent use; the
// containers built on top of them are not, which is their callers'
// problem, not the pool's.
type Pool struct {
	name      string
	blockSize int
	capBytes  int64

	mu          sync.Mutex
	slabs       [][]byte
	freeList    [][]byte
	outstanding map[uintptr]struct{}

	stats Stats
}

// NewPool creates a fixed-block pool. blockSize must be positive;
// capacityBytes bounds the total mapped memory, 0 means unbounded.
func NewPool(name string, blockSize int, capacityBytes int64) (*Pool, error) {
	if blockSize <= 0 {
		return nil, cerr.NewInvalidArg("blockSize", blockSize)
	}
	if capacityBytes < 0 {
		return nil, cerr.NewInvalidArg("capacityBytes", capacityBytes)
	}
	return &Pool{
		name:        name,
		blockSize:   blockSize,
		capBytes:    capacityBytes,
		outstanding: make(map[uintptr]struct{}),
	}, nil
}

// MustNewPool is NewPool for static initialization paths.
func MustNewPool(name string, blockSize int, capacityBytes int64) *Pool {
	p, err := NewPool(name, blockSize, capacityBytes)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) BlockSize() int {
	return p.blockSize
}

func (p *Pool) Stats() *Stats {
	return &p.stats
}

// Alloc returns a zeroed block of the pool's block size. It fails with an
// out-of-memory error once the configured capacity is exhausted.
func (p *Pool) Alloc() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freeList) == 0 {
		if err := p.growLocked(); err != nil {
			return nil, err
		}
	}

	n := len(p.freeList) - 1
	blk := p.freeList[n]
	p.freeList = p.freeList[:n]
	p.outstanding[blockBase(blk)] = struct{}{}

	for i := range blk {
		blk[i] = 0
	}

	p.stats.NumAlloc.Add(1)
	curr := p.stats.NumCurrBytes.Add(int64(p.blockSize))
	for {
		hw := p.stats.HighWaterMark.Load()
		if curr <= hw || p.stats.HighWaterMark.CompareAndSwap(hw, curr) {
			break
		}
	}
	return blk, nil
}

// Free returns a block to the pool. Freeing a slice that was not
// obtained from this pool, or freeing one twice, is caller misuse: it is
// logged and otherwise ignored.
func (p *Pool) Free(blk []byte) {
	if len(blk) != p.blockSize {
		logutil.Warnf("mempool %s: free of foreign block, len %d want %d", p.name, len(blk), p.blockSize)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	base := blockBase(blk)
	if _, ok := p.outstanding[base]; !ok {
		logutil.Warnf("mempool %s: free of unknown or already freed block", p.name)
		return
	}
	delete(p.outstanding, base)
	p.freeList = append(p.freeList, blk[:p.blockSize])

	p.stats.NumFree.Add(1)
	p.stats.NumCurrBytes.Add(-int64(p.blockSize))
}

// Destroy unmaps every slab. Blocks still outstanding are logged as
// leaks; touching them afterwards is undefined.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.outstanding); n > 0 {
		logutil.Warnf("mempool %s: destroyed with %d outstanding blocks", p.name, n)
	}
	for _, slab := range p.slabs {
		freeSlab(slab)
	}
	p.slabs = nil
	p.freeList = nil
	p.outstanding = make(map[uintptr]struct{})
}

func (p *Pool) growLocked() error {
	slabSize := p.blockSize * blocksPerSlab
	if p.capBytes > 0 {
		mapped := int64(len(p.slabs)) * int64(slabSize)
		if mapped+int64(slabSize) > p.capBytes {
			return cerr.NewOOM()
		}
	}
	slab, err := allocSlab(slabSize)
	if err != nil {
		logutil.Errorf("mempool %s: slab allocation of %d bytes failed: %v", p.name, slabSize, err)
		return cerr.NewOOM()
	}
	p.slabs = append(p.slabs, slab)
	for off := 0; off+p.blockSize <= slabSize; off += p.blockSize {
		// three-index slice so a block's cap is its block size
		p.freeList = append(p.freeList, slab[off:off+p.blockSize:off+p.blockSize])
	}
	return nil
}

func blockBase(blk []byte) uintptr {
	return uintptr(unsafe.Pointer(&blk[0]))
}
