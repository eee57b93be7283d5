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

// Package hashtable implements the hash maps of this library: an
// open-addressed map with Robin Hood displacement and a separate
// chaining variant. Neither is safe for concurrent use; a map instance
// belongs to exactly one goroutine at a time.
package hashtable

import (
	"unsafe"

	"github.com/oceanstack/containerkit/pkg/common/cerr"
	"github.com/oceanstack/containerkit/pkg/common/logutil"
	"github.com/oceanstack/containerkit/pkg/common/mempool"
)

const (
	kInitialBucketCnt     = 64
	kDefaultMaxLoadFactor = 0.875

	// metadata byte layout: bit 7 occupancy, bits 0..6 the low seven
	// bits of the entry's full hash
	occupiedBit     byte = 0x80
	partialHashMask byte = 0x7F

	// displacement is tracked 16 bits wide so long multimap runs of one
	// key still place; a run needing more than this cannot be stored
	maxProbeLen uint16 = 0xFFFF
)

// Config carries the construction parameters shared by both map kinds.
// Hasher and Equals are mandatory. The copy constructor / destructor
// pairs are optional but must be registered together: with a pair set
// the map owns deep copies of the keys (or values) it stores and
// releases them on overwrite, delete and destroy.
type Config[K, V any] struct {
	Hasher Hasher[K]
	Equals KeyEquals[K]

	KeyCopy   func(K) K
	KeyDrop   func(K)
	ValueCopy func(V) V
	ValueDrop func(V)

	// Multimap permits several entries per key.
	Multimap bool
	// MaxLoadFactor is in (0, 1]; 0 picks the default 0.875.
	MaxLoadFactor float64
	// Allocator provides the bucket metadata tables; nil picks the
	// shared default pool.
	Allocator mempool.Allocator
}

func (cfg *Config[K, V]) validate() error {
	if cfg.Hasher == nil {
		return cerr.NewInvalidArg("hasher", nil)
	}
	if cfg.Equals == nil {
		return cerr.NewInvalidArg("equals", nil)
	}
	if (cfg.KeyCopy == nil) != (cfg.KeyDrop == nil) {
		return cerr.NewInvalidArg("key copy callbacks", "constructor and destructor must be registered together")
	}
	if (cfg.ValueCopy == nil) != (cfg.ValueDrop == nil) {
		return cerr.NewInvalidArg("value copy callbacks", "constructor and destructor must be registered together")
	}
	if cfg.MaxLoadFactor < 0 || cfg.MaxLoadFactor > 1 {
		return cerr.NewInvalidArg("maxLoadFactor", cfg.MaxLoadFactor)
	}
	return nil
}

type rhEntry[K, V any] struct {
	key   K
	value V
}

// RobinHoodMap is an open-addressed hash map. Collisions resolve by
// linear probing with Robin Hood displacement: on every probe step the
// entry that has already traveled further from its home bucket keeps
// the slot. Three parallel tables of identical power-of-two length are
// mutated strictly in lock step: the entries, one metadata byte per
// bucket and one 16 bit probe length per bucket. The metadata and
// probe tables come from a mempool allocator and hold no Go pointers;
// probes is a uint16 view of the probesRaw allocation.
type RobinHoodMap[K, V any] struct {
	entries   []rhEntry[K, V]
	metadata  []byte
	probes    []uint16
	probesRaw []byte

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

	alloc mempool.Allocator
}

// NewRobinHoodMap validates cfg and allocates the three tables at the
// initial capacity. Invalid arguments and allocation failure are
// errors, not panics.
func NewRobinHoodMap[K, V any](cfg Config[K, V]) (*RobinHoodMap[K, V], error) {
	if err := cfg.validate(); err != nil {
		logutil.Warnf("hashtable: rejected robin hood map config: %v", err)
		return nil, err
	}

	maxLoad := cfg.MaxLoadFactor
	if maxLoad == 0 {
		maxLoad = kDefaultMaxLoadFactor
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = mempool.Default()
	}

	metadata, err := alloc.Allocate(kInitialBucketCnt)
	if err != nil {
		return nil, err
	}
	probesRaw, err := alloc.Allocate(kInitialBucketCnt * 2)
	if err != nil {
		alloc.Free(metadata)
		return nil, err
	}

	return &RobinHoodMap[K, V]{
		entries:    make([]rhEntry[K, V], kInitialBucketCnt),
		metadata:   metadata,
		probes:     probeTable(probesRaw),
		probesRaw:  probesRaw,
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
		alloc:      alloc,
	}, nil
}

func loadLimit(bucketCnt uint64, maxLoad float64) uint64 {
	return uint64(float64(bucketCnt) * maxLoad)
}

// probeTable views a pool allocation as the probe length table. Pool
// blocks are at least word aligned.
func probeTable(raw []byte) []uint16 {
	return unsafe.Slice((*uint16)(unsafe.Pointer(&raw[0])), len(raw)/2)
}

// Len returns the number of live entries.
func (ht *RobinHoodMap[K, V]) Len() uint64 {
	if ht == nil {
		return 0
	}
	return ht.elemCnt
}

// Cap returns the current bucket count, always a power of two.
func (ht *RobinHoodMap[K, V]) Cap() uint64 {
	if ht == nil {
		return 0
	}
	return ht.bucketCnt
}

func (ht *RobinHoodMap[K, V]) IsMultimap() bool {
	return ht.multimap
}

func (ht *RobinHoodMap[K, V]) MaxLoadFactor() float64 {
	return ht.maxLoad
}

// Insert stores value under key. In non-multimap mode an existing entry
// for the key is overwritten in place; in multimap mode every insert
// adds an entry. The load factor bound holds after every return.
func (ht *RobinHoodMap[K, V]) Insert(key K, value V) error {
	if ht == nil || ht.metadata == nil {
		logutil.Warn("hashtable: insert on nil or destroyed robin hood map")
		return cerr.NewInvalidArg("map", nil)
	}
	if err := ht.resizeOnDemand(1); err != nil {
		return err
	}

	hash := ht.hasher(key)
	if !ht.multimap {
		if pos, ok := ht.lookup(hash, key); ok {
			if ht.keyDrop != nil {
				ht.keyDrop(ht.entries[pos].key)
			}
			if ht.valDrop != nil {
				ht.valDrop(ht.entries[pos].value)
			}
			ht.entries[pos] = ht.newEntry(key, value)
			return nil
		}
	}

	e := ht.newEntry(key, value)
	if _, err := ht.emplaceWithGrow(e, hash); err != nil {
		// the orphaned copy is released; the failed insert left no entry
		ht.dropEntry(&e)
		return err
	}
	return nil
}

// Find returns the value stored under key. In multimap mode it returns
// one of the matching entries.
func (ht *RobinHoodMap[K, V]) Find(key K) (V, bool) {
	var zero V
	if ht == nil || ht.metadata == nil {
		return zero, false
	}
	pos, ok := ht.lookup(ht.hasher(key), key)
	if !ok {
		return zero, false
	}
	return ht.entries[pos].value, true
}

// FindRef returns a pointer to the stored value. The pointer is
// invalidated by the next insert, delete or resize.
func (ht *RobinHoodMap[K, V]) FindRef(key K) (*V, bool) {
	if ht == nil || ht.metadata == nil {
		return nil, false
	}
	pos, ok := ht.lookup(ht.hasher(key), key)
	if !ok {
		return nil, false
	}
	return &ht.entries[pos].value, true
}

// Delete removes the entry for key and returns the number of entries
// removed: zero or one in non-multimap mode, the whole matching run in
// multimap mode. Vacated slots get their occupancy bit and probe length
// cleared, and the cluster behind each hole shifts back one slot so the
// displacement bookkeeping stays exact.
func (ht *RobinHoodMap[K, V]) Delete(key K) int {
	if ht == nil || ht.metadata == nil {
		logutil.Warn("hashtable: delete on nil or destroyed robin hood map")
		return 0
	}
	hash := ht.hasher(key)
	removed := 0
	for {
		pos, ok := ht.lookup(hash, key)
		if !ok {
			break
		}
		ht.removeAt(pos)
		removed++
		if !ht.multimap {
			break
		}
	}
	return removed
}

// Resize grows the table to hold at least requested buckets, rounded up
// to a power of two. Requests not above the current element count are
// ignored; the table never shrinks.
func (ht *RobinHoodMap[K, V]) Resize(requested uint64) error {
	if ht == nil || ht.metadata == nil {
		logutil.Warn("hashtable: resize on nil or destroyed robin hood map")
		return cerr.NewInvalidArg("map", nil)
	}
	if requested <= ht.elemCnt {
		return nil
	}
	newCnt := NextPowerOfTwo(requested)
	if newCnt <= ht.bucketCnt {
		return nil
	}
	return ht.grow(newCnt)
}

// Destroy releases every owned key and value payload and returns the
// metadata and probe tables to their pool. The map must not be used
// afterwards.
func (ht *RobinHoodMap[K, V]) Destroy() {
	if ht == nil || ht.metadata == nil {
		return
	}
	if ht.keyDrop != nil || ht.valDrop != nil {
		for i := uint64(0); i < ht.bucketCnt; i++ {
			if ht.metadata[i]&occupiedBit == 0 {
				continue
			}
			ht.dropEntry(&ht.entries[i])
		}
	}
	ht.alloc.Free(ht.metadata)
	ht.alloc.Free(ht.probesRaw)
	ht.entries, ht.metadata = nil, nil
	ht.probes, ht.probesRaw = nil, nil
	ht.bucketCnt, ht.bucketMask, ht.elemCnt, ht.maxElemCnt = 0, 0, 0, 0
}

func (ht *RobinHoodMap[K, V]) newEntry(key K, value V) rhEntry[K, V] {
	e := rhEntry[K, V]{key: key, value: value}
	if ht.keyCopy != nil {
		e.key = ht.keyCopy(key)
	}
	if ht.valCopy != nil {
		e.value = ht.valCopy(value)
	}
	return e
}

func (ht *RobinHoodMap[K, V]) dropEntry(e *rhEntry[K, V]) {
	if ht.keyDrop != nil {
		ht.keyDrop(e.key)
	}
	if ht.valDrop != nil {
		ht.valDrop(e.value)
	}
}

// lookup walks forward from the hash's home bucket. The metadata byte
// is a cheap rejection filter: the full key comparison only runs when
// both the occupancy bit and the seven partial hash bits match. The
// walk stops at the first unoccupied bucket, or at a resident whose
// probe length is below the walk distance: had the key been inserted
// it would have displaced that resident.
func (ht *RobinHoodMap[K, V]) lookup(hash uint64, key K) (uint64, bool) {
	target := occupiedBit | byte(hash)&partialHashMask
	pos := hash & ht.bucketMask
	for dist := uint64(0); dist < ht.bucketCnt; dist++ {
		md := ht.metadata[pos]
		if md&occupiedBit == 0 || uint64(ht.probes[pos]) < dist {
			return 0, false
		}
		if md == target && ht.equals(ht.entries[pos].key, key) {
			return pos, true
		}
		pos = (pos + 1) & ht.bucketMask
	}
	return 0, false
}

// emplace places a fully constructed entry via Robin Hood displacement.
// Placing at the insertion point shifts the rest of the run one bucket
// right, each displaced probe length growing by one. A read-only scan
// first finds the insertion point, the end of the run, and the largest
// probe length the shift would produce; the table is only mutated when
// everything fits. A failed emplace therefore leaves the map untouched
// and the caller still holds the entry, with the second return value
// reporting the probe length the placement would have needed.
func (ht *RobinHoodMap[K, V]) emplace(e rhEntry[K, V], hash uint64) (uint64, uint64, error) {
	ins := hash & ht.bucketMask
	probe := uint64(0)
	for ht.metadata[ins]&occupiedBit != 0 && uint64(ht.probes[ins]) >= probe {
		probe++
		ins = (ins + 1) & ht.bucketMask
		if probe > ht.bucketCnt {
			// unreachable: the load factor keeps at least one bucket free
			return 0, 0, cerr.NewInternalErrorf("hash table full at %d buckets", ht.bucketCnt)
		}
	}

	needed := probe
	end := ins
	for ht.metadata[end]&occupiedBit != 0 {
		if shifted := uint64(ht.probes[end]) + 1; shifted > needed {
			needed = shifted
		}
		end = (end + 1) & ht.bucketMask
	}
	if needed > uint64(maxProbeLen) {
		return 0, needed, cerr.NewOperationFailed("probe length %d overflows at %d buckets", needed, ht.bucketCnt)
	}

	for i := end; i != ins; {
		prev := (i - 1) & ht.bucketMask
		ht.entries[i] = ht.entries[prev]
		ht.metadata[i] = ht.metadata[prev]
		ht.probes[i] = ht.probes[prev] + 1
		i = prev
	}
	ht.entries[ins] = e
	ht.metadata[ins] = occupiedBit | byte(hash)&partialHashMask
	ht.probes[ins] = uint16(probe)
	ht.elemCnt++
	return ins, 0, nil
}

// emplaceWithGrow retries emplace after doubling the table when a probe
// run outgrows the probe length limit. Growth splits a run only where
// its hashes differ, so the needed probe length must drop on every
// retry; a run of identical hashes never shrinks, and the loop gives up
// as soon as a doubling brought no progress, returning the overflow
// error with the map still valid.
func (ht *RobinHoodMap[K, V]) emplaceWithGrow(e rhEntry[K, V], hash uint64) (uint64, error) {
	lastNeeded := ^uint64(0)
	for {
		pos, needed, err := ht.emplace(e, hash)
		if err == nil {
			return pos, nil
		}
		if !cerr.IsErrCode(err, cerr.ErrOperationFailed) {
			return 0, err
		}
		if needed >= lastNeeded {
			return 0, err
		}
		lastNeeded = needed
		if gerr := ht.grow(ht.bucketCnt << 1); gerr != nil {
			return 0, gerr
		}
	}
}

// removeAt destroys the payload at pos and repairs the cluster behind
// it: every following entry with a nonzero probe length shifts back one
// bucket with its probe length decremented, and the final vacated slot
// has its occupancy bit and probe length cleared.
func (ht *RobinHoodMap[K, V]) removeAt(pos uint64) {
	ht.dropEntry(&ht.entries[pos])

	hole := pos
	for {
		next := (hole + 1) & ht.bucketMask
		if ht.metadata[next]&occupiedBit == 0 || ht.probes[next] == 0 {
			break
		}
		ht.entries[hole] = ht.entries[next]
		ht.metadata[hole] = ht.metadata[next]
		ht.probes[hole] = ht.probes[next] - 1
		hole = next
	}

	var zero rhEntry[K, V]
	ht.entries[hole] = zero
	ht.metadata[hole] = 0
	ht.probes[hole] = 0
	ht.elemCnt--
}

func (ht *RobinHoodMap[K, V]) resizeOnDemand(n uint64) error {
	targetCnt := ht.elemCnt + n
	if targetCnt <= ht.maxElemCnt {
		return nil
	}
	newCnt := ht.bucketCnt << 1
	for loadLimit(newCnt, ht.maxLoad) < targetCnt {
		newCnt <<= 1
	}
	return ht.grow(newCnt)
}

// grow rehashes into fresh tables of newCnt buckets. All three new
// tables are in hand before the old ones are touched, so an allocation
// failure leaves the map unchanged. Entries move wholesale: ownership
// of any heap payload transfers with the struct copy, so no copy
// constructor runs here and the old entry table is dropped without
// running destructors.
func (ht *RobinHoodMap[K, V]) grow(newCnt uint64) error {
	newMeta, err := ht.alloc.Allocate(int(newCnt))
	if err != nil {
		return err
	}
	newProbesRaw, err := ht.alloc.Allocate(int(newCnt) * 2)
	if err != nil {
		ht.alloc.Free(newMeta)
		return err
	}
	newEntries := make([]rhEntry[K, V], newCnt)

	oldEntries := ht.entries
	oldMeta := ht.metadata
	oldProbesRaw := ht.probesRaw
	oldCnt := ht.bucketCnt

	ht.entries = newEntries
	ht.metadata = newMeta
	ht.probes = probeTable(newProbesRaw)
	ht.probesRaw = newProbesRaw
	ht.bucketCnt = newCnt
	ht.bucketMask = newCnt - 1
	ht.maxElemCnt = loadLimit(newCnt, ht.maxLoad)
	ht.elemCnt = 0

	for i := uint64(0); i < oldCnt; i++ {
		if oldMeta[i]&occupiedBit == 0 {
			continue
		}
		if _, _, err := ht.emplace(oldEntries[i], ht.hasher(oldEntries[i].key)); err != nil {
			return cerr.NewInternalErrorf("rehash into %d buckets: %v", newCnt, err)
		}
	}

	ht.alloc.Free(oldMeta)
	ht.alloc.Free(oldProbesRaw)
	return nil
}

// RobinHoodMapIterator yields entries in table order, which is no
// particular order. Mutating the map invalidates the iterator.
type RobinHoodMapIterator[K, V any] struct {
	table *RobinHoodMap[K, V]
	pos   uint64
}

func (it *RobinHoodMapIterator[K, V]) Init(ht *RobinHoodMap[K, V]) {
	it.table = ht
	it.pos = 0
}

func (it *RobinHoodMapIterator[K, V]) Next() (key K, value V, err error) {
	for it.pos < it.table.bucketCnt {
		if it.table.metadata[it.pos]&occupiedBit != 0 {
			break
		}
		it.pos++
	}
	if it.pos >= it.table.bucketCnt {
		err = cerr.NewOutOfRange("iterator exhausted")
		return
	}
	e := &it.table.entries[it.pos]
	it.pos++
	return e.key, e.value, nil
}
