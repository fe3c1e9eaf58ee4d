/*
NAME
  config.go

DESCRIPTION
  Config.go defines the StreamingConfig struct, frozen at engine
  construction, and its Validate/Update methods.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

// Package config contains the configuration settings for the
// streaming engine.
package config

import (
	"github.com/ausocean/utils/logging"
)

// Config provides the parameters relevant to a streaming engine
// instance, per spec §3. Default values for these fields are defined
// as consts in variables.go.
type Config struct {
	// Logger holds an implementation of the Logger interface. This
	// must be set for the engine to work correctly.
	Logger logging.Logger

	// LogLevel is the engine's logging verbosity level. Valid values
	// are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning, logging.Error, logging.Fatal.
	LogLevel int8

	// MaxWidth and MaxHeight bound the pool's large-tier buffer and
	// bitmap sizing.
	MaxWidth, MaxHeight uint

	// BaseQuality, MinQuality, MaxQuality are the JPEG-style quality
	// ceiling, 0-100. Invariant: MinQuality <= BaseQuality <= MaxQuality.
	BaseQuality, MinQuality, MaxQuality uint

	// MinChangeThreshold is the percent of blocks changed below which
	// a frame is dropped.
	MinChangeThreshold float64

	// KeyFrameInterval is the keyframe period in frames: a keyframe is
	// forced once this many frames have passed since the last one.
	KeyFrameInterval uint

	// BlockSize is the pixels-per-side of the change-detection block.
	BlockSize uint

	// MaxBitrateMbps feeds the network adapter's bitrate-saturation
	// check. TargetBitrateMbps and MinBitrateMbps are defaulted by
	// Validate and stored, but the engine does not read them.
	TargetBitrateMbps, MaxBitrateMbps, MinBitrateMbps float64

	// TargetFPS is the frame rate the caller intends to drive the
	// engine at; informational only, the engine does not read it.
	TargetFPS uint

	// BufferPoolSize is the nominal per-tier size of the buffer pool;
	// each tier holds at most two or four times this many buffers.
	BufferPoolSize uint

	// AllowRegionalEncode permits the compressor's cropped
	// bounding-box encode path, per spec §4.3's permitted optimization.
	AllowRegionalEncode bool
}

// Validate checks for any errors in the config fields and defaults
// settings if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their
// corresponding values, parses the string values into the correct
// type, and sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// LogInvalidField logs that a field was bad or unset and is being
// defaulted, matching the engine's other config-warning messages.
func (c *Config) LogInvalidField(name string, def interface{}) {
	if c.Logger == nil {
		return
	}
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
