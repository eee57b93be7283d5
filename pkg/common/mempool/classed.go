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
	"math/bits"
	"sync"

	"github.com/oceanstack/containerkit/pkg/common/cerr"
)

const (
	minClassSize = 64
	maxClassSize = 1 << 20
)

// Allocator serves variable power-of-two sized requests. The container
// packages draw their bucket metadata tables through this interface.
type Allocator interface {
	// Allocate returns a zeroed slice of exactly size bytes.
	Allocate(size int) ([]byte, error)
	// Free gives the slice back. The slice must be one previously
	// returned by Allocate on the same allocator.
	Free(blk []byte)
}

// ClassedAllocator routes each request to the fixed-block pool of the
// smallest class that fits. Requests above the largest class fall back
// to the Go heap, where the runtime's own size classes take over.
type ClassedAllocator struct {
	pools []*Pool
}

func NewClassedAllocator(name string) *ClassedAllocator {
	var pools []*Pool
	for size := minClassSize; size <= maxClassSize; size <<= 1 {
		pools = append(pools, MustNewPool(name, size, 0))
	}
	return &ClassedAllocator{pools: pools}
}

func (c *ClassedAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, cerr.NewInvalidArg("size", size)
	}
	if size > maxClassSize {
		return make([]byte, size), nil
	}
	blk, err := c.pools[classIndex(size)].Alloc()
	if err != nil {
		return nil, err
	}
	return blk[:size], nil
}

func (c *ClassedAllocator) Free(blk []byte) {
	if cap(blk) > maxClassSize {
		return
	}
	c.pools[classIndex(cap(blk))].Free(blk[:cap(blk)])
}

// Destroy unmaps every class pool.
func (c *ClassedAllocator) Destroy() {
	for _, p := range c.pools {
		p.Destroy()
	}
}

func classIndex(size int) int {
	if size <= minClassSize {
		return 0
	}
	idx := bits.Len(uint(size - 1)) // ceil(log2(size))
	return idx - bits.Len(uint(minClassSize-1))
}

var (
	defaultAllocator     *ClassedAllocator
	defaultAllocatorOnce sync.Once
)

// Default returns the shared allocator used when a container is built
// without an explicit one.
func Default() Allocator {
	defaultAllocatorOnce.Do(func() {
		defaultAllocator = NewClassedAllocator("default")
	})
	return defaultAllocator
}
