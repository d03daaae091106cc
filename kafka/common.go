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

// Package kafka runs the datum codec against a Kafka transport: a
// producer which encodes records into datums, and a consumer group
// which decodes datums back into records.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/plugin/kotel"
	"github.com/twmb/franz-go/plugin/kzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SASLMechanism type alias to sasl.Mechanism.
type SASLMechanism = sasl.Mechanism

// CommonConfig defines common configuration for Kafka consumers and
// producers.
type CommonConfig struct {
	// Brokers is the list of kafka brokers used to seed the Kafka client.
	// If empty, the KAFKA_BROKERS environment variable is used.
	Brokers []string

	// ClientID to use when connecting to Kafka. This is used for logging
	// and client identification purposes.
	ClientID string

	// Version is the software version to use in the Kafka client. This is
	// useful since it shows up in Kafka metrics and logs.
	Version string

	// ConfigFile is the path of an optional YAML configuration file
	// holding bootstrap servers and SASL credentials. If empty, the
	// KAFKA_CONFIG_FILE environment variable is used. The file is
	// reloaded when broker connections fail, so bootstrap servers and
	// credentials may be rotated without restarting.
	ConfigFile string

	// Logger to use for any errors. Required.
	Logger *zap.Logger

	// SASL configures the kgo.Client to use SASL authorization. If nil,
	// the mechanism is read from the KAFKA_SASL_MECHANISM, KAFKA_USERNAME
	// and KAFKA_PASSWORD environment variables.
	SASL SASLMechanism

	// TLS configures the kgo.Client to use TLS for authentication.
	// This option conflicts with Dialer. Only one can be used.
	TLS *tls.Config

	// Dialer uses fn to dial addresses, overriding the default dialer
	// that uses a 10s dial timeout and no TLS (unless TLS option is set).
	// This option conflicts with TLS. Only one can be used.
	Dialer func(ctx context.Context, network, address string) (net.Conn, error)

	// DisableTelemetry disables the OpenTelemetry hooks.
	DisableTelemetry bool

	// TracerProvider allows specifying a custom otel tracer provider.
	// Defaults to the global one.
	TracerProvider trace.TracerProvider

	// hooks are set by finalize when a config file is used.
	hooks []kgo.Hook
}

// finalize ensures the configuration is valid, setting defaults and
// loading environment and file based overrides, and returns an error
// otherwise.
func (cfg *CommonConfig) finalize() error {
	var errs []error
	if cfg.Logger == nil {
		errs = append(errs, errors.New("kafka: logger must be set"))
	} else {
		cfg.Logger = cfg.Logger.Named("kafka")
	}
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = os.Getenv("KAFKA_CONFIG_FILE")
	}
	if cfg.ConfigFile != "" {
		hook, brokers, saslMechanism, err := newConfigFileHook(cfg.ConfigFile, cfg.Logger)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.hooks = append(cfg.hooks, hook)
			if len(cfg.Brokers) == 0 {
				cfg.Brokers = brokers
			}
			if cfg.SASL == nil {
				cfg.SASL = saslMechanism
			}
		}
	}
	if len(cfg.Brokers) == 0 {
		if v := os.Getenv("KAFKA_BROKERS"); v != "" {
			cfg.Brokers = strings.Split(v, ",")
		} else {
			errs = append(errs, errors.New("kafka: at least one broker must be set"))
		}
	}
	if cfg.TLS != nil && cfg.Dialer != nil {
		errs = append(errs, errors.New("kafka: only one of TLS or Dialer can be set"))
	} else if cfg.TLS == nil && cfg.Dialer == nil && os.Getenv("KAFKA_PLAINTEXT") != "true" {
		cfg.TLS = &tls.Config{}
		if os.Getenv("KAFKA_TLS_INSECURE") == "true" {
			cfg.TLS.InsecureSkipVerify = true
		}
	}
	if cfg.SASL == nil {
		mechanism, err := saslMechanismFromEnv()
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.SASL = mechanism
		}
	}
	return errors.Join(errs...)
}

func (cfg *CommonConfig) tracerProvider() trace.TracerProvider {
	if cfg.TracerProvider != nil {
		return cfg.TracerProvider
	}
	return otel.GetTracerProvider()
}

func (cfg *CommonConfig) newClient(additionalOpts ...kgo.Opt) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.WithLogger(kzap.New(cfg.Logger)),
		kgo.WithHooks(&loggerHook{logger: cfg.Logger}),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
		if cfg.Version != "" {
			opts = append(opts, kgo.SoftwareNameAndVersion(
				cfg.ClientID, cfg.Version,
			))
		}
	}
	if cfg.Dialer != nil {
		opts = append(opts, kgo.Dialer(cfg.Dialer))
	} else if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS.Clone()))
	}
	if cfg.SASL != nil {
		opts = append(opts, kgo.SASL(cfg.SASL))
	}
	if !cfg.DisableTelemetry {
		kotelService := kotel.NewKotel(
			kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(cfg.tracerProvider()))),
			kotel.WithMeter(kotel.NewMeter()),
		)
		opts = append(opts, kgo.WithHooks(kotelService.Hooks()...))
	}
	if len(cfg.hooks) > 0 {
		opts = append(opts, kgo.WithHooks(cfg.hooks...))
	}
	opts = append(opts, additionalOpts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed creating kafka client: %w", err)
	}
	// Issue a metadata refresh request on construction, so the broker
	// list is populated.
	client.ForceMetadataRefresh()
	return client, nil
}

// saslMechanismFromEnv builds a SASL mechanism from KAFKA_SASL_MECHANISM,
// KAFKA_USERNAME and KAFKA_PASSWORD. Returns nil when none is configured.
func saslMechanismFromEnv() (SASLMechanism, error) {
	properties := saslConfigProperties{
		Mechanism: os.Getenv("KAFKA_SASL_MECHANISM"),
		Username:  os.Getenv("KAFKA_USERNAME"),
		Password:  os.Getenv("KAFKA_PASSWORD"),
	}
	if err := properties.finalize(); err != nil {
		return nil, fmt.Errorf("kafka: error configuring SASL: %w", err)
	}
	switch properties.Mechanism {
	case "PLAIN":
		return plain.Auth{
			User: properties.Username,
			Pass: properties.Password,
		}.AsMechanism(), nil
	case "AWS_MSK_IAM":
		mechanism, err := newAWSMSKIAMSASL()
		if err != nil {
			return nil, fmt.Errorf("kafka: error configuring SASL/AWS_MSK_IAM: %w", err)
		}
		return mechanism, nil
	}
	return nil, nil
}
