package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/linuxmatters/corti/internal/config"
	"github.com/linuxmatters/corti/internal/faults"
	"github.com/linuxmatters/corti/internal/stimulus"
)

// apply layers the command-line flags over the template.
func (c *CLI) apply(t *config.Template) error {
	if c.WAV != "" {
		t.Stimulus.WAV = c.WAV
	}
	if c.Level != "" {
		levels, err := stimulus.ParseLevels(c.Level)
		if err != nil {
			return err
		}
		t.Stimulus.Levels = levels
	}
	if c.Hum != "" {
		t.Stimulus.Hum = c.Hum
	}
	if c.Out != "" {
		t.Output.Directory = c.Out
	}
	if c.Save != "" {
		t.Output.Save = c.Save
	}
	if c.Clean {
		t.Output.Clean = true
	}
	if c.Sections > 0 {
		if c.Sections != t.Model.Sections {
			t.Model.Poles = nil
		}
		t.Model.Sections = c.Sections
	}
	if c.Workers > 0 {
		t.Model.Workers = c.Workers
	}
	if c.Neuropathy != "" {
		t.Model.Neuropathy = c.Neuropathy
	}
	if c.NoCFWeighting {
		t.Model.CFWeighting = false
	}
	if c.Brainstem != "" {
		t.Model.Brainstem = c.Brainstem
	}
	if c.NoBrainstem {
		t.Model.Brainstem = "none"
	}
	if c.Seed != "" {
		seed, err := strconv.ParseUint(c.Seed, 10, 64)
		if err != nil {
			return faults.InvalidParameters("seed %q is not an unsigned integer", c.Seed)
		}
		t.Model.Seed = &seed
	}
	if c.Verbose {
		t.Logging.Level = "debug"
		if t.Logging.File == "" {
			t.Logging.File = debugLogFile
		}
	}
	return t.Validate()
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
