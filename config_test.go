/*
 * Copyright 2026 Tollgate Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tollgate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		config Config[string, int]
		err    error
	}{
		{"no counters", Config[string, int]{MaxCost: 1, KeyToHash: KeyToHash[string]}, ErrNumCounters},
		{"no max cost", Config[string, int]{NumCounters: 1, KeyToHash: KeyToHash[string]}, ErrMaxCost},
		{"negative buffer", Config[string, int]{NumCounters: 1, MaxCost: 1, BufferItems: -1, KeyToHash: KeyToHash[string]}, ErrBufferItems},
		{"no hash", Config[string, int]{NumCounters: 1, MaxCost: 1}, ErrKeyToHash},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.config.validate(), tc.err)
		})
	}

	var nilConfig *Config[string, int]
	require.Error(t, nilConfig.validate())
}

func TestConfigDefaults(t *testing.T) {
	c := Config[string, int]{NumCounters: 10, MaxCost: 10, KeyToHash: KeyToHash[string]}
	require.NoError(t, c.validate())
	require.Equal(t, int64(64), c.BufferItems)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	raw := []byte("num_counters: 1000\nmax_cost: 100\nbuffer_items: 32\nmetrics: true\n")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	config, err := LoadConfig[string, int](path)
	require.NoError(t, err)
	require.Equal(t, int64(1000), config.NumCounters)
	require.Equal(t, int64(100), config.MaxCost)
	require.Equal(t, int64(32), config.BufferItems)
	require.True(t, config.Metrics)
	require.NotNil(t, config.KeyToHash)
	require.NoError(t, config.validate())
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig[string, int](filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_cost: [oops"), 0o644))
	_, err := LoadConfig[string, int](path)
	require.Error(t, err)
}
