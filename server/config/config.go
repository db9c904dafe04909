// Package config loads the configuration of the formtrack binaries
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/formtrack/pkg/analysisclient"
	"github.com/cyclopcam/formtrack/pkg/pose"
	"github.com/cyclopcam/formtrack/pkg/smooth"
	"github.com/cyclopcam/formtrack/pkg/tracker"
	"gopkg.in/yaml.v3"
)

const DefaultFilename = "formtrack.json"

type Smoothing struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	MinCutoff float64 `json:"minCutoff" yaml:"minCutoff"`
	Beta      float64 `json:"beta" yaml:"beta"`
	DCutoff   float64 `json:"dCutoff" yaml:"dCutoff"`
}

// AnalysisServer configures the reference analysis service (cmd/analysisd)
type AnalysisServer struct {
	Listen            string   `json:"listen" yaml:"listen"`                       // eg ":8090"
	Database          string   `json:"database" yaml:"database"`                   // sqlite filename
	APIKeys           []string `json:"apiKeys" yaml:"apiKeys"`                     // Accepted values of the x-api-key header. Empty means no authentication.
	RequestsPerMinute int      `json:"requestsPerMinute" yaml:"requestsPerMinute"` // Per-IP limit on uploads. Zero disables the limit.
}

type Config struct {
	ServerURL                 string         `json:"serverUrl" yaml:"serverUrl"` // Analysis service. Empty for tracking only.
	APIKey                    string         `json:"apiKey" yaml:"apiKey"`
	Domain                    string         `json:"domain" yaml:"domain"`     // eg "weightlifting"
	Activity                  string         `json:"activity" yaml:"activity"` // eg "squat"
	AnalysisPerSecond         int            `json:"analysisPerSecond" yaml:"analysisPerSecond"`
	ResolutionWidth           int            `json:"resolutionWidth" yaml:"resolutionWidth"`
	ResolutionHeight          int            `json:"resolutionHeight" yaml:"resolutionHeight"`
	BufferCapacity            int            `json:"bufferCapacity" yaml:"bufferCapacity"`
	Smoothing                 Smoothing      `json:"smoothing" yaml:"smoothing"`
	BeginRecordingImmediately bool           `json:"beginRecordingImmediately" yaml:"beginRecordingImmediately"`
	PixelCoordinates          bool           `json:"pixelCoordinates" yaml:"pixelCoordinates"` // Estimator emits pixel coordinates instead of [0,1]
	AnalysisServer            AnalysisServer `json:"analysisServer" yaml:"analysisServer"`
}

func DefaultConfig() *Config {
	p := smooth.DefaultParams()
	return &Config{
		AnalysisPerSecond: analysisclient.DefaultPerSecond,
		ResolutionWidth:   480,
		ResolutionHeight:  640,
		BufferCapacity:    analysisclient.DefaultCapacity,
		Smoothing: Smoothing{
			Enabled:   true,
			MinCutoff: p.MinCutoff,
			Beta:      p.Beta,
			DCutoff:   p.DCutoff,
		},
		BeginRecordingImmediately: true,
		AnalysisServer: AnalysisServer{
			Listen:            ":8090",
			Database:          "analysisd.sqlite",
			RequestsPerMinute: 600,
		},
	}
}

// LoadConfig reads a JSON or YAML (.yaml/.yml) config file.
// Fields that are missing from the file keep their default values.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error loading as YAML %v: %w", filename, err)
		}
	default:
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.AnalysisPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("analysisPerSecond must be positive"))
	}
	if c.BufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("bufferCapacity must be positive"))
	}
	if c.ResolutionWidth <= 0 || c.ResolutionHeight <= 0 {
		errs = append(errs, fmt.Errorf("resolution must be positive (%v x %v)", c.ResolutionWidth, c.ResolutionHeight))
	}
	if c.Smoothing.Enabled && (c.Smoothing.MinCutoff <= 0 || c.Smoothing.Beta < 0 || c.Smoothing.DCutoff <= 0) {
		errs = append(errs, fmt.Errorf("smoothing requires minCutoff > 0, beta >= 0, dCutoff > 0"))
	}
	if c.ServerURL != "" && c.APIKey == "" {
		errs = append(errs, fmt.Errorf("apiKey is required when serverUrl is set"))
	}
	if c.AnalysisServer.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("analysisServer.requestsPerMinute may not be negative"))
	}
	return errors.Join(errs...)
}

// Recording returns true if frames will be uploaded to an analysis service
func (c *Config) Recording() bool {
	return c.ServerURL != ""
}

// SessionOptions converts the config into the options of a tracking session
func (c *Config) SessionOptions() tracker.Options {
	opts := tracker.DefaultOptions()
	opts.Domain = c.Domain
	opts.Activity = c.Activity
	opts.ResolutionWidth = c.ResolutionWidth
	opts.ResolutionHeight = c.ResolutionHeight
	if c.PixelCoordinates {
		opts.Bounds = pose.PixelBounds(c.ResolutionWidth, c.ResolutionHeight)
	}
	opts.Smoothing = smooth.Params{
		MinCutoff: c.Smoothing.MinCutoff,
		Beta:      c.Smoothing.Beta,
		DCutoff:   c.Smoothing.DCutoff,
	}
	opts.DisableSmoothing = !c.Smoothing.Enabled
	opts.BeginRecording = c.BeginRecordingImmediately
	opts.Upload.PerSecond = c.AnalysisPerSecond
	opts.Upload.Capacity = c.BufferCapacity
	return opts
}
