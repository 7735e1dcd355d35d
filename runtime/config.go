// Package runtime drives a flotalk.Context to completion behind a
// read/write queue, the embedding surface a host process uses instead of
// reaching into the core package directly, per spec.md section 4.9 and
// SPEC_FULL.md section 6.9.
package runtime

import (
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultReaderSlots is the semaphore capacity a Scheduler uses when no
// configuration overrides it: "many readers, one writer, writer waits for
// all readers" (spec.md section 4.9) needs a concrete reader count to size
// the writer's exclusive-access weight against.
const DefaultReaderSlots = 64

// Config is the runtime's YAML-loadable configuration. None of flotalk's
// teacher repo needs external configuration (an Io VM is configured
// entirely from command-line flags), so this is grounded on the pack's own
// yaml.v2 dependency rather than on any particular iolang file.
type Config struct {
	ReaderSlots int `yaml:"reader_slots"`
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{ReaderSlots: DefaultReaderSlots}
}

// LoadConfig reads and parses a YAML configuration file at path, filling in
// DefaultReaderSlots for any field left unset or set to a non-positive
// value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.ReaderSlots <= 0 {
		cfg.ReaderSlots = DefaultReaderSlots
	}
	return cfg, nil
}
