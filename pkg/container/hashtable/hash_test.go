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
)

func TestHashUint64Deterministic(t *testing.T) {
	for _, x := range []uint64{0, 1, 42, 1 << 32, ^uint64(0)} {
		require.Equal(t, HashUint64(x), HashUint64(x))
	}
	require.NotEqual(t, HashUint64(1), HashUint64(2))
}

func TestHashBytesMatchesString(t *testing.T) {
	cases := []string{"", "a", "hello world", "0123456789abcdef0123456789abcdef"}
	for _, s := range cases {
		require.Equal(t, HashBytes([]byte(s)), HashString(s))
	}
	require.NotEqual(t, HashString("abc"), HashString("abd"))
}

func TestHashBytesLengthSensitive(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	seen := make(map[uint64]int)
	for n := 0; n <= 256; n++ {
		h := HashBytes(data[:n])
		prev, dup := seen[h]
		require.False(t, dup, "length %d collides with length %d", n, prev)
		seen[h] = n
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[uint64]uint64{
		0:    1,
		1:    1,
		2:    2,
		3:    4,
		63:   64,
		64:   64,
		65:   128,
		1000: 1024,
		1024: 1024,
	}
	for in, want := range cases {
		require.Equal(t, want, NextPowerOfTwo(in), "NextPowerOfTwo(%d)", in)
	}
}

func TestEqualsOf(t *testing.T) {
	eq := EqualsOf[string]()
	require.True(t, eq("x", "x"))
	require.False(t, eq("x", "y"))
}
