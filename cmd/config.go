// elPrep: a high-performance tool for analyzing SAM/BAM files.
// Copyright (c) 2017-2020 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of the environment variables that override
// configuration file settings, as in ELBCF_NR_OF_THREADS.
const EnvPrefix = "ELBCF"

// Config holds the settings shared by all commands. Values are taken
// from the defaults, an optional YAML file, the environment, and the
// command line, in increasing order of precedence.
type Config struct {
	LogPath          string `yaml:"log_path" envconfig:"LOG_PATH"`
	Debug            bool   `yaml:"debug" envconfig:"DEBUG"`
	HumanLogs        bool   `yaml:"human_logs" envconfig:"HUMAN_LOGS"`
	NrOfThreads      int    `yaml:"nr_of_threads" envconfig:"NR_OF_THREADS"`
	CompressionLevel int    `yaml:"compression_level" envconfig:"COMPRESSION_LEVEL"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{CompressionLevel: -1}
}

// LoadConfig reads the YAML file at path, if path is not empty, on
// top of the defaults, and then applies the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%w, while reading configuration file %v", err, path)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w, in configuration file %v", err, path)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// addConfigFlags registers the command line flags for Config.
func addConfigFlags(flags *flag.FlagSet, configPath *string) {
	flags.StringVar(configPath, "config", "", "read settings from the specified YAML file")
	flags.String("log-path", "", "write log files to the specified directory")
	flags.Bool("debug", false, "log debug messages")
	flags.Bool("human-logs", false, "write human-readable instead of JSON log messages")
	flags.Int("nr-of-threads", 0, "number of worker threads")
	flags.Int("compression-level", -1, "deflate level for compressed output, -1 for the default")
}

// mergeFlags overwrites cfg with the flags explicitly set on the
// command line.
func (cfg *Config) mergeFlags(flags *flag.FlagSet) {
	flags.Visit(func(f *flag.Flag) {
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		switch f.Name {
		case "log-path":
			cfg.LogPath = getter.Get().(string)
		case "debug":
			cfg.Debug = getter.Get().(bool)
		case "human-logs":
			cfg.HumanLogs = getter.Get().(bool)
		case "nr-of-threads":
			cfg.NrOfThreads = getter.Get().(int)
		case "compression-level":
			cfg.CompressionLevel = getter.Get().(int)
		}
	})
}

// resolveConfig loads the configuration named by the --config flag
// and applies the other flags of the parsed flag set.
func resolveConfig(flags *flag.FlagSet, configPath string) (Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	cfg.mergeFlags(flags)
	return cfg, nil
}

// check reports invalid settings.
func (cfg Config) check() error {
	if cfg.NrOfThreads < 0 {
		return fmt.Errorf("invalid nr-of-threads %v", cfg.NrOfThreads)
	}
	if cfg.CompressionLevel < -1 || cfg.CompressionLevel > 9 {
		return fmt.Errorf("invalid compression-level %v", cfg.CompressionLevel)
	}
	return nil
}
