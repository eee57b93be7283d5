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

// Package cerr defines the typed errors returned by the container
// packages. Every error carries a numeric code so callers can branch
// on the kind without string matching.
package cerr

import (
	"fmt"
)

const (
	// Ok is never carried by a live *Error; it exists so IsErrCode(nil, Ok)
	// reads naturally at call sites.
	Ok uint16 = 0

	// Group 1: internal errors
	ErrInternal uint16 = 20101
	ErrOOM      uint16 = 20103

	// Group 2: bad input
	ErrInvalidArg uint16 = 20201
	ErrOutOfRange uint16 = 20202

	// Group 3: failed operations that left no side effects
	ErrOperationFailed uint16 = 20301
	ErrNotFound        uint16 = 20302
)

var errorMsgRefer = map[uint16]string{
	ErrInternal:        "internal error: %s",
	ErrOOM:             "error: out of memory",
	ErrInvalidArg:      "invalid argument %s, bad value %s",
	ErrOutOfRange:      "out of range: %s",
	ErrOperationFailed: "operation failed: %s",
	ErrNotFound:        "not found",
}

// Error is the concrete error type of this library.
type Error struct {
	code    uint16
	message string
}

func newError(code uint16, args ...any) *Error {
	format, has := errorMsgRefer[code]
	if !has {
		panic(fmt.Sprintf("not exist error code: %d", code))
	}
	if len(args) == 0 {
		return &Error{code: code, message: format}
	}
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

// IsErrCode reports whether e is a *Error carrying code rc.
func IsErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}
	me, ok := e.(*Error)
	if !ok {
		return false
	}
	return me.code == rc
}

// ConvertGoError wraps a foreign error as an internal error. A nil error
// and an already-typed error pass through unchanged.
func ConvertGoError(err error) error {
	if err == nil {
		return err
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return NewInternalErrorf("convert go error: %v", err)
}

func NewInternalErrorf(msg string, args ...any) *Error {
	return newError(ErrInternal, fmt.Sprintf(msg, args...))
}

func NewOOM() *Error {
	return newError(ErrOOM)
}

func NewInvalidArg(arg string, val any) *Error {
	return newError(ErrInvalidArg, arg, fmt.Sprintf("%v", val))
}

func NewOutOfRange(msg string, args ...any) *Error {
	return newError(ErrOutOfRange, fmt.Sprintf(msg, args...))
}

func NewOperationFailed(msg string, args ...any) *Error {
	return newError(ErrOperationFailed, fmt.Sprintf(msg, args...))
}

func NewNotFound() *Error {
	return newError(ErrNotFound)
}
