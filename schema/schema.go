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

// Package schema loads and parses the Avro schema a codec is built
// around. Loading happens once, at startup; any failure is a
// configuration error and must prevent the codec from being constructed.
package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/linkedin/goavro/v2"
)

// ErrSchemaUnavailable is returned by Load when the schema document
// cannot be fetched from its URI.
var ErrSchemaUnavailable = errors.New("schema: document unavailable")

// Schema is an immutable parsed Avro schema. It is never mutated after
// Load or Parse return, and is safe for concurrent use by any number of
// encode and decode calls.
type Schema struct {
	codec *goavro.Codec
}

// Load fetches the schema document addressed by uri and parses it. The
// URI may use the file or http(s) scheme; a bare filesystem path is also
// accepted. Load is a startup-time operation: callers must treat any
// error as fatal and not construct a codec from a partial schema.
func Load(ctx context.Context, uri string) (*Schema, error) {
	doc, err := fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSchemaUnavailable, uri, err)
	}
	s, err := Parse(string(doc))
	if err != nil {
		return nil, fmt.Errorf("schema: parsing document from %q: %w", uri, err)
	}
	return s, nil
}

// Parse parses an inline Avro schema document.
func Parse(document string) (*Schema, error) {
	codec, err := goavro.NewCodec(document)
	if err != nil {
		return nil, fmt.Errorf("schema: invalid avro schema: %w", err)
	}
	return &Schema{codec: codec}, nil
}

// Codec returns the parsed Avro codec for binary encoding and decoding.
func (s *Schema) Codec() *goavro.Codec {
	return s.codec
}

// Canonical returns the parsing canonical form of the schema.
func (s *Schema) Canonical() string {
	return s.codec.CanonicalSchema()
}

func fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %q", resp.Status)
		}
		return io.ReadAll(resp.Body)
	case "file":
		return os.ReadFile(u.Path)
	case "":
		// A bare filesystem path.
		return os.ReadFile(uri)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// Resolver resolves a schema from the fingerprint carried in a datum's
// framing header. The codec currently verifies and discards header
// fingerprints; a Resolver implementation slots in once lookup by
// fingerprint is wanted, without changing the header contract.
type Resolver interface {
	ResolveSchema(ctx context.Context, fingerprint []byte) (*Schema, error)
}
