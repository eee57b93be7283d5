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

package cerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrCodes(t *testing.T) {
	err := NewInvalidArg("maxLoadFactor", 1.5)
	require.True(t, IsErrCode(err, ErrInvalidArg))
	require.False(t, IsErrCode(err, ErrOOM))
	require.Contains(t, err.Error(), "maxLoadFactor")
	require.Contains(t, err.Error(), "1.5")

	require.True(t, IsErrCode(nil, Ok))
	require.False(t, IsErrCode(nil, ErrInternal))
	require.False(t, IsErrCode(errors.New("plain"), ErrInternal))

	require.Equal(t, ErrOOM, NewOOM().ErrorCode())
	require.Equal(t, "error: out of memory", NewOOM().Error())
}

func TestConvertGoError(t *testing.T) {
	require.NoError(t, ConvertGoError(nil))

	typed := NewOperationFailed("insert aborted")
	require.Equal(t, error(typed), ConvertGoError(typed))

	converted := ConvertGoError(errors.New("boom"))
	require.True(t, IsErrCode(converted, ErrInternal))
	require.Contains(t, converted.Error(), "boom")
}
