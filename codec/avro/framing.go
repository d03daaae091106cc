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
	"bytes"
	"encoding/base64"

	"go.uber.org/zap"
)

// computeSkip reports how many leading bytes of buf are transport
// framing rather than Avro data, and whether the header was verified.
//
// A buffer shorter than the configured header, or a header whose marker
// does not match, degrades to a zero skip: the full buffer is handed to
// the Avro decoder. Both degradations are logged, never raised.
func (c *Codec) computeSkip(buf []byte) (skip int, matched bool) {
	headerLen, marker := c.cfg.HeaderLength, c.cfg.HeaderMarker
	if headerLen == 0 {
		return 0, true
	}
	if len(buf) < headerLen {
		c.cfg.Logger.Warn("datum shorter than configured header, decoding it whole",
			zap.Int("header_length", headerLen),
			zap.Int("datum_length", len(buf)),
		)
		return 0, false
	}
	if len(marker) == 0 {
		return headerLen, true
	}
	if bytes.Equal(buf[:len(marker)], marker) {
		// The post-marker header bytes (typically a schema fingerprint)
		// are discarded. See schema.Resolver for the lookup seam.
		return headerLen, true
	}
	c.cfg.Logger.Warn("header marker mismatch, decoding the full datum",
		zap.Binary("expected", marker),
		zap.Binary("actual", buf[:len(marker)]),
	)
	return 0, false
}

// decodeBase64 reports whether data is valid strict standard base64,
// and its decoded form when it is. Inputs which are not base64 are
// expected: raw binary datums take the same path, so this is a branch
// predicate rather than an error.
func decodeBase64(data []byte) ([]byte, bool) {
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Strict().Decode(decoded, data)
	if err != nil {
		return nil, false
	}
	return decoded[:n], true
}
