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

// Package queuecontext propagates per-record metadata between broker
// record headers and the context handed to processors.
package queuecontext

import "context"

type metadataKey struct{}

// WithMetadata returns a context carrying metadata, merged over any
// metadata already stored in ctx. On key collisions the new value wins.
func WithMetadata(ctx context.Context, metadata map[string]string) context.Context {
	if existing, ok := MetadataFromContext(ctx); ok {
		merged := make(map[string]string, len(existing)+len(metadata))
		for k, v := range existing {
			merged[k] = v
		}
		for k, v := range metadata {
			merged[k] = v
		}
		metadata = merged
	}
	return context.WithValue(ctx, metadataKey{}, metadata)
}

// MetadataFromContext returns the metadata stored in ctx and a bool
// indicating whether any is present.
func MetadataFromContext(ctx context.Context) (map[string]string, bool) {
	if v := ctx.Value(metadataKey{}); v != nil {
		metadata, ok := v.(map[string]string)
		return metadata, ok
	}
	return nil, false
}

// DetachedContext returns a new context detached from the lifetime of
// ctx, but which still returns the values of ctx.
//
// DetachedContext is used for fire-and-forget produces which must keep
// the metadata used to correlate records, but should not be affected by
// the deadline or cancellation of ctx.
func DetachedContext(ctx context.Context) context.Context {
	return &detachedContext{Context: context.Background(), orig: ctx}
}

type detachedContext struct {
	context.Context
	orig context.Context
}

// Value returns c.orig.Value(key).
func (c *detachedContext) Value(key any) any {
	return c.orig.Value(key)
}
