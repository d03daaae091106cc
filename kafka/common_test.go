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
	"crypto/tls"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCommonConfigFinalize(t *testing.T) {
	assertErrors := func(t *testing.T, cfg CommonConfig, errors ...string) {
		t.Helper()
		err := cfg.finalize()
		assert.EqualError(t, err, strings.Join(errors, "\n"))
	}

	t.Run("invalid", func(t *testing.T) {
		assertErrors(t, CommonConfig{},
			"kafka: logger must be set",
			"kafka: at least one broker must be set",
		)
	})

	t.Run("tls_or_dialer", func(t *testing.T) {
		assertErrors(t, CommonConfig{
			Brokers: []string{"broker"},
			Logger:  zap.NewNop(),
			TLS:     &tls.Config{},
			Dialer:  func(ctx context.Context, network, address string) (net.Conn, error) { panic("unreachable") },
		}, "kafka: only one of TLS or Dialer can be set")
	})

	t.Run("valid", func(t *testing.T) {
		cfg := CommonConfig{
			Brokers: []string{"broker"},
			Logger:  zap.NewNop(),
		}
		require.NoError(t, cfg.finalize())
		assert.Equal(t, []string{"broker"}, cfg.Brokers)
	})

	t.Run("brokers_from_environment", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "a,b,c")
		cfg := CommonConfig{Logger: zap.NewNop()}
		require.NoError(t, cfg.finalize())
		assert.Equal(t, []string{"a", "b", "c"}, cfg.Brokers)
	})

	t.Run("tls_default", func(t *testing.T) {
		t.Setenv("KAFKA_PLAINTEXT", "")
		cfg := CommonConfig{Brokers: []string{"broker"}, Logger: zap.NewNop()}
		require.NoError(t, cfg.finalize())
		require.NotNil(t, cfg.TLS)
		assert.False(t, cfg.TLS.InsecureSkipVerify)

		t.Setenv("KAFKA_TLS_INSECURE", "true")
		cfg = CommonConfig{Brokers: []string{"broker"}, Logger: zap.NewNop()}
		require.NoError(t, cfg.finalize())
		require.NotNil(t, cfg.TLS)
		assert.True(t, cfg.TLS.InsecureSkipVerify)
	})

	t.Run("saslplain_from_environment", func(t *testing.T) {
		// KAFKA_SASL_MECHANISM is inferred.
		t.Setenv("KAFKA_USERNAME", "kafka_username")
		t.Setenv("KAFKA_PASSWORD", "kafka_password")
		cfg := CommonConfig{
			Brokers: []string{"broker"},
			Logger:  zap.NewNop(),
		}
		require.NoError(t, cfg.finalize())
		require.NotNil(t, cfg.SASL)
		assert.Equal(t, "PLAIN", cfg.SASL.Name())
		_, message, err := cfg.SASL.Authenticate(context.Background(), "host")
		require.NoError(t, err)
		assert.Equal(t, []byte("\x00kafka_username\x00kafka_password"), message)
	})

	t.Run("unsupported_sasl_from_environment", func(t *testing.T) {
		t.Setenv("KAFKA_SASL_MECHANISM", "SCRAM-SHA-512")
		cfg := CommonConfig{
			Brokers: []string{"broker"},
			Logger:  zap.NewNop(),
		}
		err := cfg.finalize()
		require.Error(t, err)
		assert.ErrorContains(t, err, `unsupported SASL mechanism "SCRAM-SHA-512"`)
	})
}

func TestCommonConfigFile(t *testing.T) {
	t.Run("brokers_and_sasl", func(t *testing.T) {
		cfg := CommonConfig{
			Logger: zap.NewNop(),
			ConfigFile: writeConfigFile(t, `
bootstrap:
  servers: broker1:9092,broker2:9092
sasl:
  username: config_username
  password: config_password
`),
		}
		require.NoError(t, cfg.finalize())
		assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Brokers)
		require.NotNil(t, cfg.SASL)
		assert.Equal(t, "PLAIN", cfg.SASL.Name())
		_, message, err := cfg.SASL.Authenticate(context.Background(), "host")
		require.NoError(t, err)
		assert.Equal(t, []byte("\x00config_username\x00config_password"), message)
		assert.Len(t, cfg.hooks, 1)
	})

	t.Run("explicit_brokers_take_precedence", func(t *testing.T) {
		cfg := CommonConfig{
			Logger:  zap.NewNop(),
			Brokers: []string{"explicit:9092"},
			ConfigFile: writeConfigFile(t, `
bootstrap:
  servers: file:9092
`),
		}
		require.NoError(t, cfg.finalize())
		assert.Equal(t, []string{"explicit:9092"}, cfg.Brokers)
	})

	t.Run("unsupported_mechanism", func(t *testing.T) {
		cfg := CommonConfig{
			Logger: zap.NewNop(),
			ConfigFile: writeConfigFile(t, `
bootstrap:
  servers: broker
sasl:
  mechanism: GSSAPI
`),
		}
		err := cfg.finalize()
		require.Error(t, err)
		assert.ErrorContains(t, err, `unsupported SASL mechanism "GSSAPI"`)
	})

	t.Run("missing_logger", func(t *testing.T) {
		cfg := CommonConfig{
			ConfigFile: writeConfigFile(t, `
bootstrap:
  servers: file:9092
`),
		}
		err := cfg.finalize()
		require.Error(t, err)
		assert.EqualError(t, err, "kafka: logger must be set")
		// The file is still loaded, the missing logger is the only error.
		assert.Equal(t, []string{"file:9092"}, cfg.Brokers)
	})

	t.Run("missing_file", func(t *testing.T) {
		cfg := CommonConfig{
			Logger:     zap.NewNop(),
			Brokers:    []string{"broker"},
			ConfigFile: filepath.Join(t.TempDir(), "missing.yml"),
		}
		err := cfg.finalize()
		require.Error(t, err)
		assert.ErrorContains(t, err, "error reading kafka config file")
	})
}
