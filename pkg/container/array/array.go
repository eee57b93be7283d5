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

// Package array implements a growable contiguous buffer of elements
// with optional deep-copy ownership semantics. When a copy constructor
// and destructor pair is registered, the array owns deep copies of
// everything stored in it and releases them on overwrite, removal and
// destruction; without the pair it stores plain values.
package array

import (
	"github.com/oceanstack/containerkit/pkg/common/cerr"
	"github.com/oceanstack/containerkit/pkg/common/logutil"
)

// Array is a dynamic array of T. The zero length array is ready for use
// after New.
type Array[T any] struct {
	data     []T
	copyCtor func(T) T
	copyDtor func(T)
}

type Option[T any] func(*Array[T])

// WithCopy registers the deep-copy pair. Registering only one half is a
// construction-time error surfaced by NewChecked.
func WithCopy[T any](ctor func(T) T, dtor func(T)) Option[T] {
	return func(a *Array[T]) {
		a.copyCtor = ctor
		a.copyDtor = dtor
	}
}

func New[T any](opts ...Option[T]) *Array[T] {
	a := &Array[T]{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewChecked is New with argument validation: a copy constructor and
// destructor must be registered together or not at all.
func NewChecked[T any](opts ...Option[T]) (*Array[T], error) {
	a := New(opts...)
	if (a.copyCtor == nil) != (a.copyDtor == nil) {
		return nil, cerr.NewInvalidArg("copy callbacks", "constructor and destructor must be registered together")
	}
	return a, nil
}

func (a *Array[T]) Len() int {
	return len(a.data)
}

func (a *Array[T]) Cap() int {
	return cap(a.data)
}

// Resize grows the array to n elements, zero-filling the new region.
// Requests to shrink are ignored; the array never shrinks silently.
func (a *Array[T]) Resize(n int) {
	if n <= len(a.data) {
		return
	}
	if n <= cap(a.data) {
		// the backing store may hold stale values from before a Reset
		old := len(a.data)
		a.data = a.data[:n]
		var zero T
		for i := old; i < n; i++ {
			a.data[i] = zero
		}
		return
	}
	data := make([]T, n)
	copy(data, a.data)
	a.data = data
}

// Peek returns the element at index i. O(1).
func (a *Array[T]) Peek(i int) (T, bool) {
	if i < 0 || i >= len(a.data) {
		var zero T
		return zero, false
	}
	return a.data[i], true
}

// Ref returns a pointer to the element at index i. The pointer is
// invalidated by any operation that grows the array.
func (a *Array[T]) Ref(i int) (*T, bool) {
	if i < 0 || i >= len(a.data) {
		return nil, false
	}
	return &a.data[i], true
}

// Overwrite replaces the element at index i, releasing the displaced
// element and deep-copying v when a copy pair is registered. O(1).
func (a *Array[T]) Overwrite(i int, v T) bool {
	if i < 0 || i >= len(a.data) {
		logutil.Warnf("array: overwrite at %d outside length %d", i, len(a.data))
		return false
	}
	if a.copyDtor != nil {
		a.copyDtor(a.data[i])
	}
	a.data[i] = a.construct(v)
	return true
}

// Append adds v at the end, growing as needed.
func (a *Array[T]) Append(v T) {
	a.data = append(a.data, a.construct(v))
}

// Insert places v at index i, shifting later elements right. i may
// equal Len, which appends.
func (a *Array[T]) Insert(i int, v T) bool {
	if i < 0 || i > len(a.data) {
		logutil.Warnf("array: insert at %d outside length %d", i, len(a.data))
		return false
	}
	var zero T
	a.data = append(a.data, zero)
	copy(a.data[i+1:], a.data[i:])
	a.data[i] = a.construct(v)
	return true
}

// Remove deletes the element at index i, shifting later elements left
// and releasing the removed element when a copy pair is registered.
func (a *Array[T]) Remove(i int) bool {
	if i < 0 || i >= len(a.data) {
		logutil.Warnf("array: remove at %d outside length %d", i, len(a.data))
		return false
	}
	if a.copyDtor != nil {
		a.copyDtor(a.data[i])
	}
	copy(a.data[i:], a.data[i+1:])
	var zero T
	a.data[len(a.data)-1] = zero
	a.data = a.data[:len(a.data)-1]
	return true
}

// Reset empties the array without releasing elements. Use Destroy when
// the array owns its contents.
func (a *Array[T]) Reset() {
	a.data = a.data[:0]
}

// Destroy releases every live element and drops the backing storage.
func (a *Array[T]) Destroy() {
	if a.copyDtor != nil {
		for i := range a.data {
			a.copyDtor(a.data[i])
		}
	}
	a.data = nil
}

// Slice exposes the live elements. Mutating the returned slice mutates
// the array.
func (a *Array[T]) Slice() []T {
	return a.data
}

func (a *Array[T]) construct(v T) T {
	if a.copyCtor != nil {
		return a.copyCtor(v)
	}
	return v
}
