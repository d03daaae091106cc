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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	avroqueue "github.com/elastic/avro-queue"
	"github.com/elastic/avro-queue/codec/avro"
	"github.com/elastic/avro-queue/schema"
)

type mode uint8

const (
	modeDecode mode = iota
	modeEncode
)

type avrocat struct {
	schemaURI    string
	mode         mode
	headerLength int
	headerMarker []byte
	tagOnFailure bool
}

func newAvrocat(parsers ...func(*avrocat) error) (*avrocat, error) {
	var cat avrocat
	for _, parse := range parsers {
		if err := parse(&cat); err != nil {
			return nil, err
		}
	}
	return &cat, nil
}

func (cat *avrocat) run(ctx context.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	s, err := schema.Load(ctx, cat.schemaURI)
	if err != nil {
		return err
	}
	codec, err := avro.New(avro.Config{
		Schema:       s,
		HeaderLength: cat.headerLength,
		HeaderMarker: cat.headerMarker,
		TagOnFailure: cat.tagOnFailure,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	switch cat.mode {
	case modeDecode:
		return cat.decode(ctx, codec, os.Stdin, os.Stdout)
	case modeEncode:
		return cat.encode(ctx, codec, os.Stdin, os.Stdout)
	}
	return nil
}

func (cat *avrocat) decode(ctx context.Context, codec *avro.Codec, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var record avroqueue.Record
		if err := codec.Decode(scanner.Bytes(), &record); err != nil {
			return err
		}
		line, err := json.Marshal(record)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(line))
	}
	return scanner.Err()
}

func (cat *avrocat) encode(ctx context.Context, codec *avro.Codec, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var fields map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &fields); err != nil {
			return err
		}
		datum, err := codec.Encode(avroqueue.Record{Fields: fields})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(datum))
	}
	return scanner.Err()
}
