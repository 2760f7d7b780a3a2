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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/gostor/samtgt/pkg/api"
)

const (
	// ConfigFileName is the name of config file
	ConfigFileName = "config.json"
	// EnvPrefix prefixes the environment variables overriding the file.
	EnvPrefix = "SAMTGT"

	DefaultTargetName = "iqn.2016-09.com.gostor:samtgt"
	DefaultHost       = "tcp://127.0.0.1:23457"
)

// LogicalUnit describes a buffered logical unit created at startup.
type LogicalUnit struct {
	LUN         int64  `json:"lun" mapstructure:"lun"`
	Storage     string `json:"storage" mapstructure:"storage"`
	Path        string `json:"path" mapstructure:"path"`
	BlockSize   uint32 `json:"block_size,omitempty" mapstructure:"block_size"`
	Size        uint64 `json:"size,omitempty" mapstructure:"size"`
	Threads     int    `json:"threads,omitempty" mapstructure:"threads"`
	QueueLength int    `json:"queue_length,omitempty" mapstructure:"queue_length"`
}

type Config struct {
	Target       string        `json:"target" mapstructure:"target"`
	LogLevel     string        `json:"log_level" mapstructure:"log_level"`
	Hosts        []string      `json:"hosts" mapstructure:"hosts"`
	Threads      int           `json:"threads" mapstructure:"threads"`
	QueueLength  int           `json:"queue_length" mapstructure:"queue_length"`
	LogicalUnits []LogicalUnit `json:"luns" mapstructure:"luns"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target", DefaultTargetName)
	v.SetDefault("log_level", "info")
	v.SetDefault("hosts", []string{DefaultHost})
	v.SetDefault("threads", 4)
	v.SetDefault("queue_length", 64)
}

// ConfigDir returns the directory the configuration file is stored in:
// $SAMTGT_CONFIG, or ~/.samtgt.
func ConfigDir() string {
	if dir := os.Getenv(EnvPrefix + "_CONFIG"); dir != "" {
		return dir
	}
	home, err := homedir.Dir()
	if err != nil {
		return ".samtgt"
	}
	return filepath.Join(home, ".samtgt")
}

// Load reads the configuration file in the given directory, if any, and
// applies SAMTGT_* environment overrides.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = ConfigDir()
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s - %v", configDir, err)
		}
	}
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("%s - %v", configDir, err)
	}
	for i := range config.LogicalUnits {
		lu := &config.LogicalUnits[i]
		if lu.Storage == "" {
			lu.Storage = "file"
		}
		path, err := homedir.Expand(lu.Path)
		if err != nil {
			return nil, fmt.Errorf("lun %d: %v", lu.LUN, err)
		}
		lu.Path = path
	}
	return config, config.Validate()
}

// Validate rejects duplicated or negative LUNs.
func (config *Config) Validate() error {
	seen := make(map[int64]bool)
	for _, lu := range config.LogicalUnits {
		if lu.LUN < 0 {
			return fmt.Errorf("bad parameter: invalid lun %d", lu.LUN)
		}
		if seen[lu.LUN] {
			return fmt.Errorf("bad parameter: lun %d configured twice", lu.LUN)
		}
		seen[lu.LUN] = true
	}
	return nil
}

// Request returns the create request of a configured logical unit.
func (lu LogicalUnit) Request() api.LogicalUnitCreateRequest {
	return api.LogicalUnitCreateRequest{
		LUN:         lu.LUN,
		Storage:     lu.Storage,
		Path:        lu.Path,
		BlockSize:   lu.BlockSize,
		Size:        lu.Size,
		Threads:     lu.Threads,
		QueueLength: lu.QueueLength,
	}
}

// Save writes the configuration as JSON.
func (config *Config) Save(filename string) error {
	if filename == "" {
		return fmt.Errorf("Can't save config with empty filename")
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := json.MarshalIndent(config, "", "\t")
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}
