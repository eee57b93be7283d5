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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oceanstack/containerkit/pkg/common/cerr"
)

func newChainedUint64Map(t *testing.T, multimap bool) *ChainedMap[uint64, uint64] {
	t.Helper()
	ht, err := NewChainedMap(Config[uint64, uint64]{
		Hasher:   HashUint64,
		Equals:   EqualsOf[uint64](),
		Multimap: multimap,
	})
	require.NoError(t, err)
	return ht
}

func TestChainedInsertFind(t *testing.T) {
	ht := newChainedUint64Map(t, false)
	defer ht.Destroy()

	for k := uint64(1); k <= 100; k++ {
		require.NoError(t, ht.Insert(k, k*10))
	}
	require.Equal(t, uint64(100), ht.Len())

	for k := uint64(1); k <= 100; k++ {
		v, ok := ht.Find(k)
		require.True(t, ok)
		require.Equal(t, k*10, v)
	}
	_, ok := ht.Find(101)
	require.False(t, ok)
}

func TestChainedOverwrite(t *testing.T) {
	ht := newChainedUint64Map(t, false)
	defer ht.Destroy()

	require.NoError(t, ht.Insert(7, 70))
	require.NoError(t, ht.Insert(7, 700))
	require.Equal(t, uint64(1), ht.Len())

	v, ok := ht.Find(7)
	require.True(t, ok)
	require.Equal(t, uint64(700), v)
}

func TestChainedDelete(t *testing.T) {
	ht := newChainedUint64Map(t, false)
	defer ht.Destroy()

	for k := uint64(1); k <= 100; k++ {
		require.NoError(t, ht.Insert(k, k*10))
	}
	for k := uint64(1); k <= 50; k++ {
		require.Equal(t, 1, ht.Delete(k))
	}
	require.Equal(t, uint64(50), ht.Len())

	for k := uint64(1); k <= 50; k++ {
		_, ok := ht.Find(k)
		require.False(t, ok)
	}
	for k := uint64(51); k <= 100; k++ {
		v, ok := ht.Find(k)
		require.True(t, ok)
		require.Equal(t, k*10, v)
	}
	require.Equal(t, 0, ht.Delete(9999))
}

func TestChainedSlotReuse(t *testing.T) {
	ht := newChainedUint64Map(t, false)
	defer ht.Destroy()

	for k := uint64(0); k < 40; k++ {
		require.NoError(t, ht.Insert(k, k))
	}
	arenaLen := ht.arena.Len()

	for k := uint64(0); k < 20; k++ {
		require.Equal(t, 1, ht.Delete(k))
	}
	// re-inserts drain the free list before the arena grows
	for k := uint64(100); k < 120; k++ {
		require.NoError(t, ht.Insert(k, k))
	}
	require.Equal(t, arenaLen, ht.arena.Len())
	require.Equal(t, uint64(40), ht.Len())
}

func TestChainedGrowth(t *testing.T) {
	ht := newChainedUint64Map(t, false)
	defer ht.Destroy()
	require.Equal(t, uint64(kInitialBucketCnt), ht.Cap())

	const n = 1000
	for k := uint64(0); k < n; k++ {
		require.NoError(t, ht.Insert(k, k))
	}
	require.GreaterOrEqual(t, ht.Cap(), uint64(kInitialBucketCnt<<3))

	for k := uint64(0); k < n; k++ {
		v, ok := ht.Find(k)
		require.True(t, ok)
		require.Equal(t, k, v)
	}
}

func TestChainedFindRefStableAcrossRehash(t *testing.T) {
	ht := newChainedUint64Map(t, false)
	defer ht.Destroy()

	require.NoError(t, ht.Insert(5, 50))
	ref, ok := ht.FindRef(5)
	require.True(t, ok)

	// rehash relinks chains without moving arena entries
	require.NoError(t, ht.Resize(4096))
	*ref = 55
	v, _ := ht.Find(5)
	require.Equal(t, uint64(55), v)
}

func TestChainedMultimap(t *testing.T) {
	ht := newChainedUint64Map(t, true)
	defer ht.Destroy()

	for i := uint64(0); i < 5; i++ {
		require.NoError(t, ht.Insert(42, i))
	}
	require.NoError(t, ht.Insert(43, 99))
	require.Equal(t, uint64(6), ht.Len())

	require.Equal(t, 5, ht.Delete(42))
	require.Equal(t, uint64(1), ht.Len())
	_, ok := ht.Find(42)
	require.False(t, ok)

	v, ok := ht.Find(43)
	require.True(t, ok)
	require.Equal(t, uint64(99), v)
}

func TestChainedIterator(t *testing.T) {
	ht := newChainedUint64Map(t, false)
	defer ht.Destroy()

	for k := uint64(0); k < 200; k++ {
		require.NoError(t, ht.Insert(k, k*3))
	}
	require.Equal(t, 1, ht.Delete(100))

	seen := make(map[uint64]uint64)
	var itr ChainedMapIterator[uint64, uint64]
	itr.Init(ht)
	for {
		k, v, err := itr.Next()
		if err != nil {
			require.True(t, cerr.IsErrCode(err, cerr.ErrOutOfRange))
			break
		}
		seen[k] = v
	}
	require.Equal(t, 199, len(seen))
	_, ok := seen[100]
	require.False(t, ok)
}

func TestChainedOwnedPayloads(t *testing.T) {
	ctorCalls, dtorCalls := 0, 0
	ht, err := NewChainedMap(Config[string, []byte]{
		Hasher: HashString,
		Equals: EqualsOf[string](),
		ValueCopy: func(v []byte) []byte {
			ctorCalls++
			out := make([]byte, len(v))
			copy(out, v)
			return out
		},
		ValueDrop: func([]byte) {
			dtorCalls++
		},
	})
	require.NoError(t, err)

	require.NoError(t, ht.Insert("a", []byte("one")))
	require.NoError(t, ht.Insert("a", []byte("two")))
	require.NoError(t, ht.Insert("b", []byte("bee")))
	require.Equal(t, 1, ht.Delete("b"))
	require.Equal(t, 3, ctorCalls)
	require.Equal(t, 2, dtorCalls)

	ht.Destroy()
	require.Equal(t, ctorCalls, dtorCalls)
}

func TestChainedConfigValidation(t *testing.T) {
	_, err := NewChainedMap(Config[uint64, uint64]{
		Equals: EqualsOf[uint64](),
	})
	require.True(t, cerr.IsErrCode(err, cerr.ErrInvalidArg))

	_, err = NewChainedMap(Config[uint64, uint64]{
		Hasher:  HashUint64,
		Equals:  EqualsOf[uint64](),
		KeyDrop: func(uint64) {},
	})
	require.True(t, cerr.IsErrCode(err, cerr.ErrInvalidArg))
}

func TestChainedUseAfterDestroy(t *testing.T) {
	ht := newChainedUint64Map(t, false)
	require.NoError(t, ht.Insert(1, 1))
	ht.Destroy()

	require.Error(t, ht.Insert(2, 2))
	_, ok := ht.Find(1)
	require.False(t, ok)
	require.Equal(t, 0, ht.Delete(1))
	ht.Destroy()
}

func BenchmarkChainedInsert(b *testing.B) {
	ht, _ := NewChainedMap(Config[uint64, uint64]{
		Hasher: HashUint64,
		Equals: EqualsOf[uint64](),
	})
	defer ht.Destroy()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ht.Insert(uint64(i), uint64(i))
	}
}
