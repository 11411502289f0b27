// Package config loads image configuration, mirroring the viper-backed
// Config in junjiewwang-perf-analysis/pkg/config — a mapstructure-tagged
// struct populated from file, env, and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the tunables spec.md §6.1 lists under "Configuration
// fields". The allocator callbacks (alloc/free/memcopy/memset) the spec
// describes for a systems-language host collapse to Go's own runtime
// allocator here — there is no way, nor reason, to let an embedding Go
// host override malloc. The VM reads the two capacities and
// InitialSlabSize; LogLevel is loaded but nothing reads it (the CLI's log
// level comes from its --verbose flag).
type Config struct {
	OperandStackCapacity int    `mapstructure:"operand_stack_capacity"`
	HeapCapacity         int    `mapstructure:"heap_capacity"`
	InitialSlabSize      int    `mapstructure:"initial_slab_size"`
	LogLevel             string `mapstructure:"log_level"`
}

// Default returns the configuration used when a host doesn't supply one,
// matching the teacher's VM.New defaults in spirit (fixed-size stack,
// generous default heap).
func Default() Config {
	return Config{
		OperandStackCapacity: 1024,
		HeapCapacity:         1 << 20,
		InitialSlabSize:      64,
		LogLevel:             "info",
	}
}

// Load reads configuration from an optional file path plus TINYTALK_*
// environment variables, falling back to Default for anything unset.
func Load(path string) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("operand_stack_capacity", def.OperandStackCapacity)
	v.SetDefault("heap_capacity", def.HeapCapacity)
	v.SetDefault("initial_slab_size", def.InitialSlabSize)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("TINYTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.OperandStackCapacity <= 0 || cfg.HeapCapacity <= 0 {
		return Config{}, fmt.Errorf("invalid config: operand_stack_capacity and heap_capacity must be positive")
	}
	return cfg, nil
}
