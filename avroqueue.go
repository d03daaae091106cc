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

// Package avroqueue provides a single-datum Avro codec for streaming
// pipelines, along with Kafka producing and consuming built around it.
//
// Unlike Avro object container files, the datums handled here arrive one
// per broker message, often base64 wrapped and prefixed with transport
// framing bytes that are not part of the Avro encoding.
package avroqueue

import "context"

// Topic is the destination of a produced record.
type Topic string

const (
	// AtMostOnceDeliveryType acknowledges records as soon as they are
	// fetched. Records which fail processing are not redelivered.
	AtMostOnceDeliveryType DeliveryType = iota
	// AtLeastOnceDeliveryType acknowledges records only after they have
	// been processed. Records may be redelivered after a failure.
	AtLeastOnceDeliveryType
)

// DeliveryType defines the delivery guarantee for consumed records.
type DeliveryType uint8

// Record is one structured datum flowing through a pipeline: the decoded
// form of an Avro datum, or the input to an Avro encode.
type Record struct {
	// Fields holds the record's field values keyed by field name.
	Fields map[string]any `json:"fields"`
	// Tags annotates the record for downstream routing. A record which
	// could not be decoded carries a parse failure tag.
	Tags []string `json:"tags,omitempty"`
}

// HasTag reports whether the record carries tag.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Processor processes records one at a time as they are decoded from the
// pipeline.
type Processor interface {
	// ProcessRecord processes a single record. The record must not be
	// retained after the call returns.
	ProcessRecord(context.Context, *Record) error
}

// ProcessorFunc is a function type that implements Processor.
type ProcessorFunc func(context.Context, *Record) error

// ProcessRecord calls f(ctx, record).
func (f ProcessorFunc) ProcessRecord(ctx context.Context, record *Record) error {
	return f(ctx, record)
}

// TopicRouter returns the topic where a record should be produced.
type TopicRouter func(*Record) Topic
