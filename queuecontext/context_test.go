// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package queuecontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		meta, ok := MetadataFromContext(context.Background())
		assert.False(t, ok)
		assert.Nil(t, meta)
	})
	t.Run("roundtrip", func(t *testing.T) {
		ctx := WithMetadata(context.Background(), map[string]string{"a": "b"})
		meta, ok := MetadataFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, map[string]string{"a": "b"}, meta)
	})
	t.Run("merge", func(t *testing.T) {
		ctx := WithMetadata(context.Background(), map[string]string{"a": "b", "c": "d"})
		ctx = WithMetadata(ctx, map[string]string{"a": "z", "e": "f"})
		meta, ok := MetadataFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, map[string]string{"a": "z", "c": "d", "e": "f"}, meta)
	})
}

func TestDetachedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = WithMetadata(ctx, map[string]string{"a": "b"})

	detached := DetachedContext(ctx)
	cancel()

	require.Error(t, ctx.Err())
	assert.NoError(t, detached.Err())

	meta, ok := MetadataFromContext(detached)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "b"}, meta)
}
