/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gostor/samtgt/pkg/apiserver"
	"github.com/gostor/samtgt/pkg/config"
	"github.com/gostor/samtgt/pkg/target"
	"github.com/gostor/samtgt/pkg/version"
)

func TestSetLogLevel(t *testing.T) {
	assert.NoError(t, setLogLevel("debug"))
	assert.NoError(t, setLogLevel("info"))
	assert.ErrorContains(t, setLogLevel("chatty"), "unknown log level")
}

func TestNewTargetFromConfig(t *testing.T) {
	cfg := &config.Config{
		Target:      "iqn.2016-09.com.gostor:cmd",
		Threads:     2,
		QueueLength: 8,
		LogicalUnits: []config.LogicalUnit{
			{LUN: 0, Storage: "mem", Path: "4096"},
			{LUN: 1, Storage: "null", Path: "8192"},
		},
	}
	tgt, err := newTarget(cfg)
	require.NoError(t, err)
	defer tgt.Close()
	assert.Equal(t, []int64{0, 1}, tgt.Info().LUNs)

	cfg.LogicalUnits = append(cfg.LogicalUnits, config.LogicalUnit{LUN: 2, Storage: "tape", Path: "x"})
	_, err = newTarget(cfg)
	assert.Error(t, err)
}

func runCommand(t *testing.T, args ...string) error {
	cmd := NewCommand()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestAdminCommands(t *testing.T) {
	tgt := target.New(target.Options{})
	require.NoError(t, tgt.Start())
	defer tgt.Close()
	s, err := apiserver.New(&apiserver.Config{Version: version.APIVersion})
	require.NoError(t, err)
	s.InitRouters(tgt)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	host := "tcp://" + ts.Listener.Addr().String()

	require.NoError(t, runCommand(t, "-H", host, "lu", "create", "--lun", "3", "--storage", "mem", "--path", "8192"))
	assert.Equal(t, []int64{3}, tgt.Info().LUNs)
	assert.Error(t, runCommand(t, "-H", host, "lu", "create", "--lun", "3", "--storage", "mem", "--path", "8192"))
	require.NoError(t, runCommand(t, "-H", host, "lu", "list"))
	require.NoError(t, runCommand(t, "-H", host, "target"))

	require.NoError(t, runCommand(t, "-H", host, "tmf", "logical-unit-reset", "--initiator", "iqn.2016-09.com.example:a", "--lun", "3"))
	assert.Error(t, runCommand(t, "-H", host, "tmf", "reboot", "--initiator", "iqn.2016-09.com.example:a"))
	assert.Error(t, runCommand(t, "-H", host, "tmf", "target-reset"))

	require.NoError(t, runCommand(t, "-H", host, "lu", "rm", "3"))
	assert.Empty(t, tgt.Info().LUNs)
	assert.Error(t, runCommand(t, "-H", host, "lu", "rm", "3"))
	assert.Error(t, runCommand(t, "-H", host, "lu", "rm", "three"))

	require.NoError(t, runCommand(t, "-H", host, "version"))
}
