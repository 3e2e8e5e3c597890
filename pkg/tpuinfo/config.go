// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tpuinfo

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

const (
	// DefaultLibrary is loaded if no library is configured. It is searched with the
	// platform's dynamic loader rules (LD_LIBRARY_PATH, etc.).
	DefaultLibrary = "libtpuinfo.so"

	// DefaultPort is the metrics port the reference library uses when given a port <= 0.
	DefaultPort = 8431

	// UseDefaultPort asks the library to use its default port.
	UseDefaultPort = -1

	// DefaultCapacity is the number of devices read if no capacity is configured.
	DefaultCapacity = 32

	// LibraryEnv is the environment variable that sets the library when Config.Library is empty.
	LibraryEnv = "TPUINFO_LIBRARY"

	// PortEnv is the environment variable that sets the port when Config.Port is 0.
	PortEnv = "TPUINFO_PORT"
)

// Config selects the library to bind and how to read it.
type Config struct {
	// Library name or path. Defaults to $TPUINFO_LIBRARY, or DefaultLibrary if that is not set.
	Library string `yaml:"library"`

	// Port passed to tpu_metrics. Zero means $TPUINFO_PORT, or UseDefaultPort if that is not set.
	Port int `yaml:"port"`

	// Capacity is the maximum number of devices read. Defaults to DefaultCapacity.
	Capacity int `yaml:"capacity"`
}

// Normalize returns a copy of the configuration with the defaults filled in.
func (c Config) Normalize() Config {
	normalized := c
	if normalized.Library == "" {
		if library, found := os.LookupEnv(LibraryEnv); found && library != "" {
			normalized.Library = library
		} else {
			normalized.Library = DefaultLibrary
		}
	}
	if normalized.Port == 0 {
		normalized.Port = UseDefaultPort
		if value, found := os.LookupEnv(PortEnv); found {
			port, err := strconv.Atoi(value)
			if err == nil {
				normalized.Port = port
			} else {
				klog.Warningf("tpuinfo: ignoring $%s=%q: %v", PortEnv, value, err)
			}
		}
	}
	if normalized.Capacity <= 0 {
		normalized.Capacity = DefaultCapacity
	}
	return normalized
}

// LoadConfig reads a YAML configuration file. Unknown fields are an error.
// Defaults are not filled in, see Config.Normalize.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	contents, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "tpuinfo: reading configuration")
	}
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file.
			return Config{}, nil
		}
		return Config{}, errors.Wrapf(err, "tpuinfo: parsing configuration %q", path)
	}
	return cfg, nil
}

// Open loads the configured library and resolves its symbols.
// If resolution fails, the library is closed before returning the *SymbolError.
func Open(cfg Config) (*Library, *Symbols, error) {
	cfg = cfg.Normalize()
	lib, err := Load(cfg.Library)
	if err != nil {
		return nil, nil, err
	}
	symbols, err := lib.Resolve()
	if err != nil {
		if closeErr := lib.Close(); closeErr != nil {
			klog.Warningf("%v", closeErr)
		}
		return nil, nil, err
	}
	return lib, symbols, nil
}
