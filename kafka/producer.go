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

package kafka

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	avroqueue "github.com/elastic/avro-queue"
	"github.com/elastic/avro-queue/encoding"
	"github.com/elastic/avro-queue/queuecontext"
)

// Encoder encodes an avroqueue.Record to a []byte. Type alias to
// encoding.Encoder.
type Encoder = encoding.Encoder

// CompressionCodec configures how records are compressed before being
// sent. Type alias to kgo.CompressionCodec.
type CompressionCodec = kgo.CompressionCodec

// NoCompression is a compression option that avoids compression. This can
// always be used as a fallback compression.
func NoCompression() CompressionCodec { return kgo.NoCompression() }

// GzipCompression enables gzip compression with the default compression level.
func GzipCompression() CompressionCodec { return kgo.GzipCompression() }

// SnappyCompression enables snappy compression.
func SnappyCompression() CompressionCodec { return kgo.SnappyCompression() }

// Lz4Compression enables lz4 compression with the fastest compression level.
func Lz4Compression() CompressionCodec { return kgo.Lz4Compression() }

// ZstdCompression enables zstd compression with the default compression level.
func ZstdCompression() CompressionCodec { return kgo.ZstdCompression() }

// ProducerConfig holds configuration for publishing encoded datums to
// Kafka.
type ProducerConfig struct {
	CommonConfig

	// Encoder holds an encoding.Encoder for encoding records.
	Encoder Encoder

	// TopicRouter returns the topic where a record should be produced.
	TopicRouter avroqueue.TopicRouter

	// Sync can be used to indicate whether production should be
	// synchronous.
	Sync bool

	// CompressionCodec specifies a list of compression codecs in
	// preference order. If empty, the KAFKA_PRODUCER_COMPRESSION_CODEC
	// environment variable is used (comma-separated codec names).
	CompressionCodec []CompressionCodec
}

// finalize ensures the configuration is valid, otherwise, returns an
// error.
func (cfg *ProducerConfig) finalize() error {
	errs := []error{cfg.CommonConfig.finalize()}
	if cfg.Encoder == nil {
		errs = append(errs, errors.New("kafka: encoder must be set"))
	}
	if cfg.TopicRouter == nil {
		errs = append(errs, errors.New("kafka: topic router must be set"))
	}
	if len(cfg.CompressionCodec) == 0 {
		if v := os.Getenv("KAFKA_PRODUCER_COMPRESSION_CODEC"); v != "" {
			for _, name := range strings.Split(v, ",") {
				codec, err := compressionCodec(name)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				cfg.CompressionCodec = append(cfg.CompressionCodec, codec)
			}
		}
	}
	return errors.Join(errs...)
}

func compressionCodec(name string) (CompressionCodec, error) {
	switch name {
	case "none":
		return NoCompression(), nil
	case "gzip":
		return GzipCompression(), nil
	case "snappy":
		return SnappyCompression(), nil
	case "lz4":
		return Lz4Compression(), nil
	case "zstd":
		return ZstdCompression(), nil
	default:
		return CompressionCodec{}, fmt.Errorf("kafka: unknown codec %q", name)
	}
}

// Producer publishes encoded datums to Kafka. It implements
// avroqueue.Processor so it can sit at the downstream end of a pipeline.
type Producer struct {
	cfg    ProducerConfig
	client *kgo.Client
	tracer trace.Tracer

	// mu prevents Close from closing the client while records are being
	// produced.
	mu sync.RWMutex
}

// NewProducer returns a new Producer with the given config.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("kafka: invalid producer config: %w", err)
	}
	var opts []kgo.Opt
	if len(cfg.CompressionCodec) > 0 {
		opts = append(opts, kgo.ProducerBatchCompression(cfg.CompressionCodec...))
	}
	client, err := cfg.newClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed creating producer: %w", err)
	}
	return &Producer{
		cfg:    cfg,
		client: client,
		tracer: cfg.tracerProvider().Tracer("kafka"),
	}, nil
}

// Close stops the producer.
//
// This call is blocking and will cause all the underlying clients to
// stop producing. If producing is asynchronous, it'll block until all
// messages have been produced. After Close() is called, the Producer
// cannot be reused.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	return nil
}

// ProcessRecord encodes the record and publishes it to the topic
// returned by the configured TopicRouter. If the Producer is
// synchronous, it waits until the datum has been produced to Kafka,
// otherwise it returns as soon as the datum has been stored in the
// producer's buffer and failures are logged asynchronously. Encode
// errors always abort the call.
func (p *Producer) ProcessRecord(ctx context.Context, record *avroqueue.Record) error {
	ctx, span := p.tracer.Start(ctx, "producer.ProcessRecord", trace.WithAttributes(
		attribute.Int("record.fields", len(record.Fields)),
	))
	defer span.End()

	p.mu.RLock()
	defer p.mu.RUnlock()

	encoded, err := p.cfg.Encoder.Encode(*record)
	if err != nil {
		err = fmt.Errorf("kafka: failed to encode record: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var headers []kgo.RecordHeader
	if meta, ok := queuecontext.MetadataFromContext(ctx); ok {
		for k, v := range meta {
			headers = append(headers, kgo.RecordHeader{
				Key:   k,
				Value: []byte(v),
			})
		}
	}
	msg := &kgo.Record{
		Topic:   string(p.cfg.TopicRouter(record)),
		Value:   encoded,
		Headers: headers,
	}

	if !p.cfg.Sync {
		// Detach the context from its deadline or cancellation.
		ctx = queuecontext.DetachedContext(ctx)
	}
	var wg sync.WaitGroup
	wg.Add(1)
	var produceErr error
	p.client.Produce(ctx, msg, func(msg *kgo.Record, err error) {
		defer wg.Done()
		if err != nil {
			produceErr = err
			p.cfg.Logger.Error("failed producing message",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Int32("partition", msg.Partition),
			)
		}
	})
	if !p.cfg.Sync {
		return nil
	}
	wg.Wait()
	if produceErr != nil {
		err := fmt.Errorf("kafka: failed producing record: %w", produceErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Healthy returns an error if the Kafka client fails to reach a
// discovered broker.
func (p *Producer) Healthy(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	return nil
}
