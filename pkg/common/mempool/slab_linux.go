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
	"golang.org/x/sys/unix"
)

// Slabs live outside the Go heap so a large pool does not inflate GC
// mark time. Pool blocks therefore must never store Go pointers.

func allocSlab(size int) ([]byte, error) {
	return unix.Mmap(
		-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
}

func freeSlab(slab []byte) {
	if err := unix.Munmap(slab); err != nil {
		panic(err)
	}
}
