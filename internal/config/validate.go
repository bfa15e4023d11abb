package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := validateWorker("extractor", c.Extractor, true); err != nil {
		return err
	}
	if err := validateWorker("transcriber", c.Transcriber, false); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.ScratchDir == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	if c.Paths.ScratchDir == c.Paths.StateDir {
		return errors.New("paths.scratch_dir must differ from paths.state_dir")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func validateWorker(section string, w Worker, needsOutput bool) error {
	if w.Command == "" {
		return fmt.Errorf("%s.command must be set", section)
	}
	if w.TimeoutSeconds <= 0 {
		return fmt.Errorf("%s.timeout_seconds must be positive", section)
	}
	if !containsPlaceholder(w.Args, PlaceholderInput) {
		return fmt.Errorf("%s.args must reference %s", section, PlaceholderInput)
	}
	if needsOutput && !containsPlaceholder(w.Args, PlaceholderOutput) {
		return fmt.Errorf("%s.args must reference %s", section, PlaceholderOutput)
	}
	if needsOutput && strings.ContainsAny(w.OutputName, `/\`) {
		return fmt.Errorf("%s.output_name must be a bare file name", section)
	}
	return nil
}

func containsPlaceholder(args []string, placeholder string) bool {
	return slices.ContainsFunc(args, func(arg string) bool {
		return strings.Contains(arg, placeholder)
	})
}

func (c *Config) validateJobs() error {
	if c.Jobs.WorkspaceMaxAgeHours < 0 {
		return errors.New("jobs.workspace_max_age_hours must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}
