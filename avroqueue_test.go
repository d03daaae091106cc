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

package avroqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordHasTag(t *testing.T) {
	record := Record{Tags: []string{"a", "b"}}
	assert.True(t, record.HasTag("a"))
	assert.True(t, record.HasTag("b"))
	assert.False(t, record.HasTag("c"))
	assert.False(t, (&Record{}).HasTag("a"))
}

func TestProcessorFunc(t *testing.T) {
	want := errors.New("processing failed")
	var got *Record
	processor := ProcessorFunc(func(_ context.Context, record *Record) error {
		got = record
		return want
	})
	record := Record{Fields: map[string]any{"a": "b"}}
	err := processor.ProcessRecord(context.Background(), &record)
	assert.Equal(t, want, err)
	assert.Equal(t, &record, got)
}
