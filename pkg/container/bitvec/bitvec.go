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

// Package bitvec implements a bit-packed boolean vector. The chained
// hash map uses it for bucket and slot occupancy; it is equally usable
// on its own.
package bitvec

import (
	"fmt"
	"math/bits"
)

// In case len is not a multiple of 64, much of the code below assumes
// the trailing bits of the last word are zero. Every mutation keeps
// that true.

type bitmask = uint64

/*
 * Array giving the position of the right-most set bit for each possible
 * byte value. count the right-most position as the 0th bit, and the
 * left-most the 7th bit. The 0th entry of the array should not be used.
 */
var rightmostOnePos8 = [256]uint8{
	0, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	5, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	6, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	5, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	7, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	5, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	6, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	5, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
	4, 0, 1, 0, 2, 0, 1, 0, 3, 0, 1, 0, 2, 0, 1, 0,
}

// BitVec is a growable vector of bits. The zero value is an empty
// vector ready for use.
type BitVec struct {
	len  int64
	data []uint64
}

func New() BitVec {
	return BitVec{}
}

// InitWithSize resets the vector to n unset bits.
func (n *BitVec) InitWithSize(size int64) {
	n.len = size
	n.data = make([]uint64, (size+63)/64)
}

// InitWith makes n a deep copy of other.
func (n *BitVec) InitWith(other *BitVec) {
	n.len = other.len
	n.data = append([]uint64(nil), other.data...)
}

func (n *BitVec) Clone() *BitVec {
	if n == nil {
		return nil
	}
	var ret BitVec
	ret.InitWith(n)
	return &ret
}

// Reset drops the backing storage.
func (n *BitVec) Reset() {
	n.len = 0
	n.data = nil
}

// Len returns the number of bits in the vector.
func (n *BitVec) Len() int64 {
	return n.len
}

// Size returns the number of bytes of backing storage.
func (n *BitVec) Size() int {
	return len(n.data) * 8
}

// Set sets bit row. The vector must already extend to at least row+1 bits.
func (n *BitVec) Set(row uint64) {
	n.data[row>>6] |= 1 << (row & 0x3F)
}

// Unset clears bit row. Out-of-range rows are ignored.
func (n *BitVec) Unset(row uint64) {
	if row >= uint64(n.len) {
		return
	}
	n.data[row>>6] &^= uint64(1) << (row & 0x3F)
}

// Contains reports whether bit row is set.
func (n *BitVec) Contains(row uint64) bool {
	if row >= uint64(n.len) {
		return false
	}
	return (n.data[row>>6] & (1 << (row & 0x3F))) != 0
}

func (n *BitVec) SetRange(start, end uint64) {
	if end > uint64(n.len) {
		end = uint64(n.len)
	}
	if start >= end {
		return
	}
	i, j := start>>6, (end-1)>>6
	if i == j {
		n.data[i] |= (^uint64(0) << uint(start&0x3F)) & (^uint64(0) >> (uint(-end) & 0x3F))
		return
	}
	n.data[i] |= ^uint64(0) << uint(start&0x3F)
	for k := i + 1; k < j; k++ {
		n.data[k] = ^uint64(0)
	}
	n.data[j] |= ^uint64(0) >> (uint(-end) & 0x3F)
}

func (n *BitVec) UnsetRange(start, end uint64) {
	if end > uint64(n.len) {
		end = uint64(n.len)
	}
	if start >= end {
		return
	}
	i, j := start>>6, (end-1)>>6
	if i == j {
		n.data[i] &= ^((^uint64(0) << uint(start&0x3F)) & (^uint64(0) >> (uint(-end) & 0x3F)))
		return
	}
	n.data[i] &= ^(^uint64(0) << uint(start&0x3F))
	for k := i + 1; k < j; k++ {
		n.data[k] = 0
	}
	n.data[j] &= ^(^uint64(0) >> (uint(-end) & 0x3F))
}

// IsEmpty reports whether no bit is set.
func (n *BitVec) IsEmpty() bool {
	for i := 0; i < len(n.data); i++ {
		if n.data[i] != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of set bits.
func (n *BitVec) Count() int {
	var cnt int
	for i := range n.data {
		cnt += bits.OnesCount64(n.data[i])
	}
	return cnt
}

// TryExpandWithSize grows the vector to hold at least size bits. It
// never shrinks.
func (n *BitVec) TryExpandWithSize(size int64) {
	if n.len >= size {
		return
	}
	newCap := (size + 63) / 64
	n.len = size
	if newCap > int64(cap(n.data)) {
		data := make([]uint64, newCap)
		copy(data, n.data)
		n.data = data
		return
	}
	if int64(len(n.data)) < newCap {
		n.data = n.data[:newCap]
	}
}

func (n *BitVec) IsSame(m *BitVec) bool {
	if len(m.data) != len(n.data) {
		return false
	}
	for i := 0; i < len(n.data); i++ {
		if n.data[i] != m.data[i] {
			return false
		}
	}
	return true
}

// ToArray returns the positions of all set bits in ascending order.
func (n *BitVec) ToArray() []uint64 {
	var rows []uint64
	itr := n.Iterator()
	for itr.HasNext() {
		rows = append(rows, itr.Next())
	}
	return rows
}

func (n *BitVec) String() string {
	return fmt.Sprintf("%v", n.ToArray())
}

// Iterator walks the set bits in ascending order.
type Iterator struct {
	i       uint64
	bv      *BitVec
	hasNext bool
}

func (n *BitVec) Iterator() *Iterator {
	itr := Iterator{bv: n}
	if first, ok := itr.seek(0); ok {
		itr.i = first
		itr.hasNext = true
	}
	return &itr
}

func rightmostOnePos64(word uint64) uint64 {
	// Use eight bits as a group to quickly skip over zero bytes, then
	// finish with the pre-made table.
	var result uint64
	for (word & 0xFF) == 0 {
		word >>= 8
		result += 8
	}
	result += uint64(rightmostOnePos8[word&255])
	return result
}

func (itr *Iterator) seek(i uint64) (uint64, bool) {
	nwords := (itr.bv.len + 63) / 64
	currentWord := i >> 6
	mask := (^bitmask(0)) << (i & 0x3F) // ignore bits before i

	for ; currentWord < uint64(nwords); currentWord++ {
		word := itr.bv.data[currentWord] & mask
		if word != 0 {
			return rightmostOnePos64(word) + currentWord*64, true
		}
		mask = ^bitmask(0)
	}
	return 0, false
}

func (itr *Iterator) HasNext() bool {
	return itr.hasNext
}

func (itr *Iterator) PeekNext() uint64 {
	if itr.hasNext {
		return itr.i
	}
	return 0
}

func (itr *Iterator) Next() uint64 {
	pos := itr.i
	if next, ok := itr.seek(itr.i + 1); ok {
		itr.i = next
		itr.hasNext = true
		return pos
	}
	itr.hasNext = false
	return pos
}
