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

// Command avrocat decodes Avro datums from stdin to JSON, or encodes
// JSON objects from stdin to base64 Avro datums, one per line. It is
// configured through environment variables:
//
//	SCHEMA_URI      file://, http(s):// URI or path of the Avro schema (required)
//	MODE            "decode" (default) or "encode"
//	HEADER_LENGTH   total framing bytes before the Avro data (default 0)
//	HEADER_MARKER   comma-separated byte values expected at the header start
//	TAG_ON_FAILURE  "true" to pass undecodable datums through, tagged
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
)

func main() {
	cat, err := newAvrocat(
		parseSchemaURI,
		parseMode,
		parseHeaderLength,
		parseHeaderMarker,
		parseTagOnFailure,
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := cat.run(ctx); err != nil {
		log.Fatal(err)
	}
}

func parseSchemaURI(cat *avrocat) error {
	if uri, ok := os.LookupEnv("SCHEMA_URI"); ok {
		cat.schemaURI = uri
		return nil
	}
	return errors.New("missing schema URI")
}

func parseMode(cat *avrocat) error {
	mode, ok := os.LookupEnv("MODE")
	if !ok {
		cat.mode = modeDecode
		return nil
	}
	switch mode {
	case "decode":
		cat.mode = modeDecode
	case "encode":
		cat.mode = modeEncode
	default:
		return fmt.Errorf("unsupported mode: %s", mode)
	}
	return nil
}

func parseHeaderLength(cat *avrocat) error {
	if v, ok := os.LookupEnv("HEADER_LENGTH"); ok {
		length, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse header length: %s: %w", v, err)
		}
		cat.headerLength = length
	}
	return nil
}

func parseHeaderMarker(cat *avrocat) error {
	v, ok := os.LookupEnv("HEADER_MARKER")
	if !ok || v == "" {
		return nil
	}
	for _, field := range strings.Split(v, ",") {
		b, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
		if err != nil {
			return fmt.Errorf("failed to parse header marker byte: %s: %w", field, err)
		}
		cat.headerMarker = append(cat.headerMarker, byte(b))
	}
	return nil
}

func parseTagOnFailure(cat *avrocat) error {
	if v, ok := os.LookupEnv("TAG_ON_FAILURE"); ok {
		tag, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("failed to parse tag on failure: %s: %w", v, err)
		}
		cat.tagOnFailure = tag
	}
	return nil
}
