package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML (or JSON) run configuration. Explicitly
// set flags take precedence over it.
type fileConfig struct {
	Input             string  `yaml:"input"`
	Order             string  `yaml:"order"`
	RunsDir           string  `yaml:"runs_dir"`
	RunID             string  `yaml:"run_id"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
	FalseNegativeRate float64 `yaml:"false_negative_rate"`
	LogLevel          string  `yaml:"log_level"`
	LogFormat         string  `yaml:"log_format"`
}

func loadFileConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// scoreSettings are the resolved inputs of the score and lifespans commands.
type scoreSettings struct {
	Input             string
	Order             string
	RunsDir           string
	RunID             string
	FalsePositiveRate float64
	FalseNegativeRate float64
	LogLevel          string
	LogFormat         string
}

// merge overlays explicitly set flags onto cfg.
func merge(cfg fileConfig, fs *flag.FlagSet, flags scoreSettings) scoreSettings {
	out := scoreSettings{
		Input:             cfg.Input,
		Order:             cfg.Order,
		RunsDir:           cfg.RunsDir,
		RunID:             cfg.RunID,
		FalsePositiveRate: cfg.FalsePositiveRate,
		FalseNegativeRate: cfg.FalseNegativeRate,
		LogLevel:          cfg.LogLevel,
		LogFormat:         cfg.LogFormat,
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["input"] || out.Input == "" {
		out.Input = flags.Input
	}
	if set["order"] || out.Order == "" {
		out.Order = flags.Order
	}
	if set["runs-dir"] || out.RunsDir == "" {
		out.RunsDir = flags.RunsDir
	}
	if set["run-id"] || out.RunID == "" {
		out.RunID = flags.RunID
	}
	if set["fp-rate"] || out.FalsePositiveRate == 0 {
		out.FalsePositiveRate = flags.FalsePositiveRate
	}
	if set["fn-rate"] || out.FalseNegativeRate == 0 {
		out.FalseNegativeRate = flags.FalseNegativeRate
	}
	if set["log-level"] || out.LogLevel == "" {
		out.LogLevel = flags.LogLevel
	}
	if set["log-format"] || out.LogFormat == "" {
		out.LogFormat = flags.LogFormat
	}
	return out
}
