// Package config holds the nsboot settings. There are no command line flags:
// values come from built-in defaults, an optional YAML file named by
// NSBOOT_CONFIG and NSBOOT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/rectcircle/nsboot/internal/logger"
)

const (
	// EnvFile names the YAML file to load.
	EnvFile = "NSBOOT_CONFIG"

	envNewRoot  = "NSBOOT_NEW_ROOT"
	envChroot   = "NSBOOT_CHROOT"
	envWorkload = "NSBOOT_WORKLOAD"
	envFallback = "NSBOOT_FALLBACK"
	envInspect  = "NSBOOT_INSPECT"
	envPIDInit  = "NSBOOT_PID_INIT"
	envLogLevel = "NSBOOT_LOG_LEVEL"
)

// Config is the whole bootstrap configuration.
type Config struct {
	// NewRoot is created before the mount work as the future alternate root.
	NewRoot string `yaml:"new_root"`
	// Chroot is the root the isolated process changes to. "/" keeps the
	// current root.
	Chroot string `yaml:"chroot"`
	// ProcTarget is where the fresh proc filesystem is mounted.
	ProcTarget string `yaml:"proc_target"`

	// Workload is the program the isolated process becomes.
	Workload []string `yaml:"workload"`
	// Fallback is the program the supervisor becomes.
	Fallback []string `yaml:"fallback"`
	// Inspect lists network interfaces inside the new network namespace.
	Inspect []string `yaml:"inspect"`

	// PIDInit forks after the PID unshare so the rest of the bootstrap runs
	// as PID 1 of the new namespace.
	PIDInit bool `yaml:"pid_init"`

	Log logger.Config `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		NewRoot:    "/tmp/croot",
		Chroot:     "/",
		ProcTarget: "/proc",
		Workload:   []string{"/bin/sh"},
		Fallback:   []string{"/bin/sh", "-c", "echo Hello from the new PID namespace"},
		Inspect:    []string{"ip", "a"},
		Log: logger.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays NSBOOT_* variables looked up through getenv.
// Command variables are split like a shell would.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(envNewRoot); v != "" {
		c.NewRoot = v
	}
	if v := getenv(envChroot); v != "" {
		c.Chroot = v
	}
	if v := getenv(envLogLevel); v != "" {
		c.Log.Level = v
	}
	switch getenv(envPIDInit) {
	case "":
	case "1", "true", "yes":
		c.PIDInit = true
	case "0", "false", "no":
		c.PIDInit = false
	default:
		return fmt.Errorf("config: %s: invalid boolean %q", envPIDInit, getenv(envPIDInit))
	}
	for _, cmd := range []struct {
		env string
		dst *[]string
	}{
		{envWorkload, &c.Workload},
		{envFallback, &c.Fallback},
		{envInspect, &c.Inspect},
	} {
		v := getenv(cmd.env)
		if v == "" {
			continue
		}
		args, err := shlex.Split(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", cmd.env, err)
		}
		*cmd.dst = args
	}
	return nil
}

// Validate checks paths are absolute and commands are not empty.
func (c *Config) Validate() error {
	var errs []error
	for name, p := range map[string]string{
		"new_root":    c.NewRoot,
		"chroot":      c.Chroot,
		"proc_target": c.ProcTarget,
	} {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", name, p))
		}
	}
	for name, cmd := range map[string][]string{
		"workload": c.Workload,
		"fallback": c.Fallback,
		"inspect":  c.Inspect,
	} {
		if len(cmd) == 0 || cmd[0] == "" {
			errs = append(errs, fmt.Errorf("%s command is empty", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// FromEnvironment loads the file named by NSBOOT_CONFIG, applies the
// environment and validates the result.
func FromEnvironment() (Config, error) {
	cfg, err := Load(os.Getenv(EnvFile))
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
