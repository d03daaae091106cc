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

package avro

import (
	"go.uber.org/zap"

	avroqueue "github.com/elastic/avro-queue"
)

// TagParseFailure tags records that could not be decoded and were
// passed through with their original message preserved.
const TagParseFailure = "_avroparsefailure"

// DecodeError is returned by Codec.Decode when a datum cannot be
// decoded and the codec is not configured to tag failures. It carries
// the original message so callers can route or persist it.
type DecodeError struct {
	// Message is the original input, before base64 unwrapping.
	Message []byte
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decodeFailed applies the codec's failure policy to a decode error.
// Every failure in the decode pipeline funnels through here so the
// behavior is uniform regardless of which stage failed.
func (c *Codec) decodeFailed(original []byte, out *avroqueue.Record, err error) error {
	if !c.cfg.TagOnFailure {
		return &DecodeError{Message: original, Err: err}
	}
	c.cfg.Logger.Error("unable to decode datum, tagging it through",
		zap.Error(err),
		zap.ByteString("message", original),
	)
	out.Fields = map[string]any{"message": string(original)}
	out.Tags = []string{TagParseFailure}
	return nil
}
