// Copyright 2024 The wsgate-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizedSetAddRemove(t *testing.T) {
	s := NewAuthorizedSet()
	ctx := context.Background()

	ok, err := s.Authorize(ctx, "D1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add("D1"))
	ok, err = s.Authorize(ctx, "D1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Remove("D1"))
	ok, err = s.Authorize(ctx, "D1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizedSetRejectsEmptyIdentity(t *testing.T) {
	s := NewAuthorizedSet()
	s.Add("keeper")

	assert.ErrorIs(t, s.Add(""), ErrMissingDeviceID)
	assert.ErrorIs(t, s.Remove(""), ErrMissingDeviceID)

	// A malformed update never mutates state.
	assert.Equal(t, 1, s.Len())

	_, err := s.Authorize(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingDeviceID)
}

func TestAuthorizedSetRemoveUnknownIsNoop(t *testing.T) {
	s := NewAuthorizedSet()
	require.NoError(t, s.Remove("ghost"))
	assert.Equal(t, 0, s.Len())
}
