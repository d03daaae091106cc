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

// Package avro provides an encoder/decoder for single Avro binary
// datums, as they appear one per message in streaming pipelines rather
// than inside object container files.
//
// On the decode side the codec accepts datums which are base64 wrapped,
// and datums prefixed with a fixed-length transport header, optionally
// starting with a marker byte sequence that is verified before the
// header is skipped. Encoded output carries no header: framing is
// assumed to be added by the transport, so header handling is
// deliberately asymmetric.
package avro

import (
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	avroqueue "github.com/elastic/avro-queue"
	"github.com/elastic/avro-queue/schema"
)

// Config holds configuration for an Avro datum Codec.
type Config struct {
	// Schema is the parsed Avro schema used for every encode and decode.
	// Required. The schema is read-only; a single Codec may be shared by
	// concurrent encode and decode calls.
	Schema *schema.Schema

	// HeaderLength is the total number of framing bytes preceding the
	// Avro data in an incoming datum. Zero means no header is configured.
	HeaderLength int

	// HeaderMarker is an optional byte sequence expected at the start of
	// the header. When set, the marker is compared byte for byte before
	// the header is skipped; on a mismatch the entire buffer is decoded
	// as Avro data with no bytes skipped. The bytes between the marker
	// and the end of the header (typically a schema fingerprint) are
	// discarded.
	HeaderMarker []byte

	// TagOnFailure degrades decode failures into passthrough records
	// carrying the original message and the TagParseFailure tag, instead
	// of returning an error.
	TagOnFailure bool

	// Logger is used for framing warnings and degraded decodes.
	// Defaults to a nop logger.
	Logger *zap.Logger
}

// Validate ensures the configuration is valid, otherwise, returns an
// error.
func (cfg Config) Validate() error {
	var errs []error
	if cfg.Schema == nil {
		errs = append(errs, errors.New("avro: schema must be set"))
	}
	if cfg.HeaderLength < 0 {
		errs = append(errs, errors.New("avro: header length cannot be negative"))
	}
	if len(cfg.HeaderMarker) > cfg.HeaderLength {
		errs = append(errs, errors.New("avro: header marker cannot be longer than the header"))
	}
	return errors.Join(errs...)
}

// Codec encodes and decodes single Avro binary datums against one
// schema. Codec is stateless apart from its immutable configuration and
// is safe for concurrent use.
type Codec struct {
	cfg Config
}

// New returns a new Codec with the given config.
func New(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("avro: invalid codec config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Codec{cfg: cfg}, nil
}

// Encode encodes the record's fields as one Avro binary datum and
// base64-wraps it. Encode errors always propagate to the caller: unlike
// Decode there is no degradation path.
func (c *Codec) Encode(record avroqueue.Record) ([]byte, error) {
	binary, err := c.cfg.Schema.Codec().BinaryFromNative(nil, record.Fields)
	if err != nil {
		return nil, fmt.Errorf("avro: encoding record: %w", err)
	}
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(binary)))
	base64.StdEncoding.Encode(encoded, binary)
	return encoded, nil
}

// Decode decodes one datum into out. The input is base64-unwrapped when
// it is valid base64, any configured header is skipped, and the
// remaining bytes are decoded as one Avro binary datum.
//
// On failure, Decode either returns a *DecodeError or, with
// TagOnFailure, populates out with a tagged passthrough record carrying
// the original input and returns nil.
func (c *Codec) Decode(data []byte, out *avroqueue.Record) error {
	buf := data
	if decoded, ok := decodeBase64(data); ok {
		buf = decoded
	}
	skip, _ := c.computeSkip(buf)
	native, _, err := c.cfg.Schema.Codec().NativeFromBinary(buf[skip:])
	if err != nil {
		return c.decodeFailed(data, out, fmt.Errorf("avro: decoding datum: %w", err))
	}
	fields, ok := native.(map[string]any)
	if !ok {
		return c.decodeFailed(data, out, fmt.Errorf("avro: datum decoded to %T, not a record", native))
	}
	out.Fields = fields
	out.Tags = nil
	return nil
}
