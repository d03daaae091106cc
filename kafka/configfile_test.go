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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadConfigFile(t *testing.T) {
	t.Run("file does not exist", func(t *testing.T) {
		_, err := loadConfigFile(filepath.Join(t.TempDir(), "kafka.yml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("file contents are invalid", func(t *testing.T) {
		_, err := loadConfigFile(writeConfigFile(t, "invalid!"))
		require.Error(t, err)
		assert.Regexp(t, "error parsing kafka config file .*", err.Error())
	})

	t.Run("file contents are empty", func(t *testing.T) {
		config, err := loadConfigFile(writeConfigFile(t, ""))
		require.NoError(t, err)
		assert.Zero(t, config)
	})

	t.Run("file contents are non-empty", func(t *testing.T) {
		config, err := loadConfigFile(writeConfigFile(t, `# a comment
bootstrap:
  servers: "a,b,c"
sasl:
  username: "user_name" # another comment
  password: "pass_word"`))
		require.NoError(t, err)
		assert.Equal(t, "a,b,c", config.Bootstrap.Servers)
		assert.Equal(t, "PLAIN", config.SASL.Mechanism)
		assert.Equal(t, "user_name", config.SASL.Username)
		assert.Equal(t, "pass_word", config.SASL.Password)
	})
}

func TestConfigFileHookReloadsBrokers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	path := writeConfigFile(t, `
bootstrap:
  servers: stale:9092
`)
	hook, brokers, mechanism, err := newConfigFileHook(path, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, []string{"stale:9092"}, brokers)
	assert.Nil(t, mechanism)

	client, addrs := newClusterWithTopics(t, 1, "datums")
	hook.OnNewClient(client)

	// Successful connections never touch the file.
	hook.OnBrokerConnect(kgo.BrokerMetadata{}, 0, nil, nil)
	assert.Zero(t, logs.Len())

	// Rewrite the file, then simulate a failed dial: the hook reloads
	// the file and swaps the seed brokers.
	require.NoError(t, os.WriteFile(path, []byte(
		"bootstrap:\n  servers: "+strings.Join(addrs, ",")+"\n",
	), 0o644))
	hook.OnBrokerConnect(kgo.BrokerMetadata{}, 0, nil, errors.New("dial failed"))
	assert.Len(t, logs.FilterMessage("updated kafka seed brokers").All(), 1)
	hook.mu.RLock()
	assert.Equal(t, strings.Join(addrs, ","), hook.lastBootstrapServers)
	hook.mu.RUnlock()

	// Unchanged servers are a no-op on subsequent failures.
	hook.OnBrokerConnect(kgo.BrokerMetadata{}, 0, nil, errors.New("dial failed"))
	assert.Len(t, logs.FilterMessage("updated kafka seed brokers").All(), 1)

	// A file that disappears is logged, not fatal.
	require.NoError(t, os.Remove(path))
	hook.OnBrokerConnect(kgo.BrokerMetadata{}, 0, nil, errors.New("dial failed"))
	assert.Len(t, logs.FilterMessage("failed to reload kafka config").All(), 1)
}

func TestConfigFileHookReloadsCredentials(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	path := writeConfigFile(t, `
sasl:
  username: first_user
  password: first_pass
`)
	_, _, mechanism, err := newConfigFileHook(path, zap.New(core))
	require.NoError(t, err)
	require.NotNil(t, mechanism)
	assert.Equal(t, "PLAIN", mechanism.Name())

	ctx := context.Background()
	_, message, err := mechanism.Authenticate(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00first_user\x00first_pass"), message)

	// Rotate the credentials in the file: the next authentication
	// picks them up without a restart.
	require.NoError(t, os.WriteFile(path, []byte(`
sasl:
  username: second_user
  password: second_pass
`), 0o644))
	_, message, err = mechanism.Authenticate(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00second_user\x00second_pass"), message)
	assert.Len(t,
		logs.FilterMessage("updated SASL/PLAIN credentials from kafka config file").TakeAll(),
		2,
	)
}

func writeConfigFile(t testing.TB, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kafka.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}
