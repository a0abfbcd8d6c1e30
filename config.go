// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package formstate holds the configuration shared by the form filling,
// submission, dashboard and report tools
package formstate

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/choria-io/formstate/forms"
	"github.com/choria-io/formstate/upload"
	"gopkg.in/yaml.v3"
)

// Config configures form sessions and the backend connection
type Config struct {
	// APIURL is the root of the backend API, required for network commands
	APIURL string `yaml:"api_url"`
	// OrganizationID scopes dashboard queries
	OrganizationID string `yaml:"organization_id"`
	// TokenFile is the JSON token store holding the access token
	TokenFile string `yaml:"token_file"`
	// IdentitySection is the section whose images are identity photos
	IdentitySection string `yaml:"identity_section"`
	// IdentityMaxImages limits images in the identity section
	IdentityMaxImages int `yaml:"identity_max_images"`
	// MaxImages limits images in all other sections
	MaxImages int `yaml:"max_images"`
	// MaxImageBytes is the largest accepted image after compression
	MaxImageBytes int64 `yaml:"max_image_bytes"`
	// CompressQuality is the JPEG quality images are compressed to
	CompressQuality int `yaml:"compress_quality"`
	// LateWrites decides what happens to uploads finishing after their field was unmounted
	LateWrites forms.LateWrites `yaml:"late_writes"`
	// UploadConcurrency is how many images of a batch upload at once
	UploadConcurrency int `yaml:"upload_concurrency"`
}

// DefaultConfigFile is the config file used when none is given
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "formstate", "config.yaml")
}

// LoadConfig reads and validates the YAML config file f, a missing default
// config file results in the default configuration
func LoadConfig(f string) (*Config, error) {
	cfg := &Config{}

	if f == "" {
		f = DefaultConfigFile()
		if f == "" {
			return cfg, validateConfig(cfg)
		}

		_, err := os.Stat(f)
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, validateConfig(cfg)
		}
	}

	cb, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(cb, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", f, err)
	}

	err = validateConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", f, err)
	}

	return cfg, nil
}

// Validate checks the config and fills in defaults
func (c *Config) Validate() error {
	return validateConfig(c)
}

func validateConfig(cfg *Config) error {
	if cfg.APIURL != "" {
		u, err := url.Parse(cfg.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid api_url %q", cfg.APIURL)
		}
	}

	if cfg.IdentitySection == "" {
		cfg.IdentitySection = forms.DefaultIdentitySection
	}

	if cfg.IdentityMaxImages == 0 {
		cfg.IdentityMaxImages = forms.DefaultIdentityMaxImages
	}
	if cfg.MaxImages == 0 {
		cfg.MaxImages = forms.DefaultMaxImages
	}
	if cfg.IdentityMaxImages < 0 || cfg.MaxImages < 0 {
		return fmt.Errorf("image limits must be positive")
	}

	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = forms.DefaultMaxImageBytes
	}
	if cfg.MaxImageBytes < 0 {
		return fmt.Errorf("max_image_bytes must be positive")
	}

	if cfg.CompressQuality == 0 {
		cfg.CompressQuality = upload.DefaultQuality
	}
	if cfg.CompressQuality < 1 || cfg.CompressQuality > 100 {
		return fmt.Errorf("compress_quality must be between 1 and 100")
	}

	switch cfg.LateWrites {
	case "":
		cfg.LateWrites = forms.DiscardLateWrites
	case forms.DiscardLateWrites, forms.ApplyLateWrites:
	default:
		return fmt.Errorf("late_writes must be %q or %q", forms.DiscardLateWrites, forms.ApplyLateWrites)
	}

	if cfg.UploadConcurrency == 0 {
		cfg.UploadConcurrency = forms.DefaultUploadConcurrency
	}
	if cfg.UploadConcurrency < 0 {
		return fmt.Errorf("upload_concurrency must be positive")
	}

	return nil
}

// SessionOptions are the form session options matching the config
func (c *Config) SessionOptions() []forms.Option {
	return []forms.Option{
		forms.WithIdentitySection(c.IdentitySection, c.IdentityMaxImages),
		forms.WithMaxImages(c.MaxImages),
		forms.WithMaxImageBytes(c.MaxImageBytes),
		forms.WithLateWrites(c.LateWrites),
		forms.WithUploadConcurrency(c.UploadConcurrency),
		forms.WithCompressor(upload.JPEGCompressor{Quality: c.CompressQuality}),
	}
}
