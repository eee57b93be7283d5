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

package hashtable

import (
	"github.com/oceanstack/containerkit/pkg/common/cerr"
	"github.com/oceanstack/containerkit/pkg/common/logutil"
	"github.com/oceanstack/containerkit/pkg/container/array"
	"github.com/oceanstack/containerkit/pkg/container/bitvec"
)

const chNil int32 = -1

type chEntry[K, V any] struct {
	key   K
	value V
	next  int32
}

// ChainedMap is the separate chaining counterpart of RobinHoodMap. Each
// bucket holds the head index of a singly linked chain through a shared
// entry arena. Deleted slots go on a free list and are reused before
// the arena grows, so entry indices stay stable across deletes; a
// rehash only relinks chains and never moves an entry.
type ChainedMap[K, V any] struct {
	heads []int32
	arena *array.Array[chEntry[K, V]]
	live  bitvec.BitVec

	freeHead int32

	bucketCnt  uint64
	bucketMask uint64
	elemCnt    uint64
	maxElemCnt uint64

	maxLoad  float64
	multimap bool

	hasher  Hasher[K]
	equals  KeyEquals[K]
	keyCopy func(K) K
	keyDrop func(K)
	valCopy func(V) V
	valDrop func(V)
}

// NewChainedMap validates cfg and builds an empty map at the initial
// bucket count. The Allocator field is ignored: chain links live in an
// ordinary Go slice arena.
func NewChainedMap[K, V any](cfg Config[K, V]) (*ChainedMap[K, V], error) {
	if err := cfg.validate(); err != nil {
		logutil.Warnf("hashtable: rejected chained map config: %v", err)
		return nil, err
	}

	maxLoad := cfg.MaxLoadFactor
	if maxLoad == 0 {
		maxLoad = kDefaultMaxLoadFactor
	}

	ht := &ChainedMap[K, V]{
		heads:      newHeads(kInitialBucketCnt),
		arena:      array.New[chEntry[K, V]](),
		freeHead:   chNil,
		bucketCnt:  kInitialBucketCnt,
		bucketMask: kInitialBucketCnt - 1,
		maxElemCnt: loadLimit(kInitialBucketCnt, maxLoad),
		maxLoad:    maxLoad,
		multimap:   cfg.Multimap,
		hasher:     cfg.Hasher,
		equals:     cfg.Equals,
		keyCopy:    cfg.KeyCopy,
		keyDrop:    cfg.KeyDrop,
		valCopy:    cfg.ValueCopy,
		valDrop:    cfg.ValueDrop,
	}
	ht.live.InitWithSize(kInitialBucketCnt)
	return ht, nil
}

func newHeads(bucketCnt uint64) []int32 {
	heads := make([]int32, bucketCnt)
	for i := range heads {
		heads[i] = chNil
	}
	return heads
}

func (ht *ChainedMap[K, V]) Len() uint64 {
	if ht == nil {
		return 0
	}
	return ht.elemCnt
}

func (ht *ChainedMap[K, V]) Cap() uint64 {
	if ht == nil {
		return 0
	}
	return ht.bucketCnt
}

func (ht *ChainedMap[K, V]) IsMultimap() bool {
	return ht.multimap
}

func (ht *ChainedMap[K, V]) MaxLoadFactor() float64 {
	return ht.maxLoad
}

// Insert stores value under key, overwriting in place in non-multimap
// mode and prepending to the bucket's chain otherwise.
func (ht *ChainedMap[K, V]) Insert(key K, value V) error {
	if ht == nil || ht.heads == nil {
		logutil.Warn("hashtable: insert on nil or destroyed chained map")
		return cerr.NewInvalidArg("map", nil)
	}
	ht.resizeOnDemand(1)

	hash := ht.hasher(key)
	bucket := hash & ht.bucketMask

	if !ht.multimap {
		if slot := ht.chainFind(bucket, key); slot != chNil {
			e, _ := ht.arena.Ref(int(slot))
			if ht.keyDrop != nil {
				ht.keyDrop(e.key)
			}
			if ht.valDrop != nil {
				ht.valDrop(e.value)
			}
			e.key, e.value = ht.copyPayload(key, value)
			return nil
		}
	}

	slot := ht.takeSlot()
	e, _ := ht.arena.Ref(int(slot))
	e.key, e.value = ht.copyPayload(key, value)
	e.next = ht.heads[bucket]
	ht.heads[bucket] = slot
	ht.live.Set(uint64(slot))
	ht.elemCnt++
	return nil
}

func (ht *ChainedMap[K, V]) Find(key K) (V, bool) {
	var zero V
	if ht == nil || ht.heads == nil {
		return zero, false
	}
	bucket := ht.hasher(key) & ht.bucketMask
	slot := ht.chainFind(bucket, key)
	if slot == chNil {
		return zero, false
	}
	e, _ := ht.arena.Ref(int(slot))
	return e.value, true
}

// FindRef returns a pointer to the stored value. Unlike the open
// addressed map the pointer survives inserts and deletes of other keys;
// only arena growth invalidates it.
func (ht *ChainedMap[K, V]) FindRef(key K) (*V, bool) {
	if ht == nil || ht.heads == nil {
		return nil, false
	}
	bucket := ht.hasher(key) & ht.bucketMask
	slot := ht.chainFind(bucket, key)
	if slot == chNil {
		return nil, false
	}
	e, _ := ht.arena.Ref(int(slot))
	return &e.value, true
}

// Delete unlinks every matching entry in multimap mode and at most one
// otherwise, returning the number removed. Freed slots are pushed on
// the free list for reuse.
func (ht *ChainedMap[K, V]) Delete(key K) int {
	if ht == nil || ht.heads == nil {
		logutil.Warn("hashtable: delete on nil or destroyed chained map")
		return 0
	}
	bucket := ht.hasher(key) & ht.bucketMask
	removed := 0

	prev := chNil
	slot := ht.heads[bucket]
	for slot != chNil {
		e, _ := ht.arena.Ref(int(slot))
		if !ht.equals(e.key, key) {
			prev = slot
			slot = e.next
			continue
		}
		next := e.next
		if prev == chNil {
			ht.heads[bucket] = next
		} else {
			pe, _ := ht.arena.Ref(int(prev))
			pe.next = next
		}
		ht.releaseSlot(slot, e)
		removed++
		slot = next
		if !ht.multimap {
			break
		}
	}
	return removed
}

// Resize grows the bucket table to at least requested buckets, rounded
// up to a power of two. The table never shrinks.
func (ht *ChainedMap[K, V]) Resize(requested uint64) error {
	if ht == nil || ht.heads == nil {
		logutil.Warn("hashtable: resize on nil or destroyed chained map")
		return cerr.NewInvalidArg("map", nil)
	}
	if requested <= ht.elemCnt {
		return nil
	}
	newCnt := NextPowerOfTwo(requested)
	if newCnt <= ht.bucketCnt {
		return nil
	}
	ht.rehash(newCnt)
	return nil
}

// Destroy releases every owned payload and the arena. The map must not
// be used afterwards.
func (ht *ChainedMap[K, V]) Destroy() {
	if ht == nil || ht.heads == nil {
		return
	}
	if ht.keyDrop != nil || ht.valDrop != nil {
		itr := ht.live.Iterator()
		for itr.HasNext() {
			e, _ := ht.arena.Ref(int(itr.Next()))
			ht.dropPayload(e)
		}
	}
	ht.arena.Destroy()
	ht.live.Reset()
	ht.heads = nil
	ht.freeHead = chNil
	ht.bucketCnt, ht.bucketMask, ht.elemCnt, ht.maxElemCnt = 0, 0, 0, 0
}

func (ht *ChainedMap[K, V]) copyPayload(key K, value V) (K, V) {
	if ht.keyCopy != nil {
		key = ht.keyCopy(key)
	}
	if ht.valCopy != nil {
		value = ht.valCopy(value)
	}
	return key, value
}

func (ht *ChainedMap[K, V]) dropPayload(e *chEntry[K, V]) {
	if ht.keyDrop != nil {
		ht.keyDrop(e.key)
	}
	if ht.valDrop != nil {
		ht.valDrop(e.value)
	}
}

func (ht *ChainedMap[K, V]) chainFind(bucket uint64, key K) int32 {
	for slot := ht.heads[bucket]; slot != chNil; {
		e, _ := ht.arena.Ref(int(slot))
		if ht.equals(e.key, key) {
			return slot
		}
		slot = e.next
	}
	return chNil
}

func (ht *ChainedMap[K, V]) takeSlot() int32 {
	if ht.freeHead != chNil {
		slot := ht.freeHead
		e, _ := ht.arena.Ref(int(slot))
		ht.freeHead = e.next
		return slot
	}
	var zero chEntry[K, V]
	ht.arena.Append(zero)
	ht.live.TryExpandWithSize(int64(ht.arena.Len()))
	return int32(ht.arena.Len() - 1)
}

func (ht *ChainedMap[K, V]) releaseSlot(slot int32, e *chEntry[K, V]) {
	ht.dropPayload(e)
	var zero chEntry[K, V]
	*e = zero
	e.next = ht.freeHead
	ht.freeHead = slot
	ht.live.Unset(uint64(slot))
	ht.elemCnt--
}

func (ht *ChainedMap[K, V]) resizeOnDemand(n uint64) {
	targetCnt := ht.elemCnt + n
	if targetCnt <= ht.maxElemCnt {
		return
	}
	newCnt := ht.bucketCnt << 1
	for loadLimit(newCnt, ht.maxLoad) < targetCnt {
		newCnt <<= 1
	}
	ht.rehash(newCnt)
}

// rehash relinks every live entry into a fresh bucket table. Entries
// stay where they are in the arena; only next pointers and heads
// change. Relinking prepends, so chain order within a bucket reverses.
func (ht *ChainedMap[K, V]) rehash(newCnt uint64) {
	newHeads := newHeads(newCnt)
	newMask := newCnt - 1

	itr := ht.live.Iterator()
	for itr.HasNext() {
		slot := int32(itr.Next())
		e, _ := ht.arena.Ref(int(slot))
		bucket := ht.hasher(e.key) & newMask
		e.next = newHeads[bucket]
		newHeads[bucket] = slot
	}

	ht.heads = newHeads
	ht.bucketCnt = newCnt
	ht.bucketMask = newMask
	ht.maxElemCnt = loadLimit(newCnt, ht.maxLoad)
}

// ChainedMapIterator yields entries in arena slot order.
type ChainedMapIterator[K, V any] struct {
	table *ChainedMap[K, V]
	bits  *bitvec.Iterator
}

func (it *ChainedMapIterator[K, V]) Init(ht *ChainedMap[K, V]) {
	it.table = ht
	it.bits = ht.live.Iterator()
}

func (it *ChainedMapIterator[K, V]) Next() (key K, value V, err error) {
	if !it.bits.HasNext() {
		err = cerr.NewOutOfRange("iterator exhausted")
		return
	}
	e, _ := it.table.arena.Ref(int(it.bits.Next()))
	return e.key, e.value, nil
}
