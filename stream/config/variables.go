/*
NAME
  variables.go

DESCRIPTION
  variables.go contains a list of structs that provide a variable
  Name, type in a string format, a function for updating the variable
  in the Config struct from a string, and a validation function to
  check the validity of the corresponding field value in the Config.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

package config

import (
	"fmt"
	"strconv"
)

// Config map keys.
const (
	KeyLogLevel             = "LogLevel"
	KeyMaxWidth             = "MaxWidth"
	KeyMaxHeight            = "MaxHeight"
	KeyBaseQuality          = "BaseQuality"
	KeyMinQuality           = "MinQuality"
	KeyMaxQuality           = "MaxQuality"
	KeyMinChangeThreshold   = "MinChangeThreshold"
	KeyKeyFrameInterval     = "KeyFrameInterval"
	KeyBlockSize            = "BlockSize"
	KeyTargetBitrateMbps    = "TargetBitrateMbps"
	KeyMaxBitrateMbps       = "MaxBitrateMbps"
	KeyMinBitrateMbps       = "MinBitrateMbps"
	KeyTargetFPS            = "TargetFPS"
	KeyBufferPoolSize       = "BufferPoolSize"
	KeyAllowRegionalEncode  = "AllowRegionalEncode"
)

const (
	typeUint  = "uint"
	typeFloat = "float"
	typeBool  = "bool"
)

// Defaults, per spec §3.
const (
	defaultMaxWidth  = 1920
	defaultMaxHeight = 1080

	defaultBaseQuality = 70
	defaultMinQuality  = 20
	defaultMaxQuality  = 95

	defaultMinChangeThreshold = 0.1
	defaultKeyFrameInterval   = 300
	defaultBlockSize          = 16

	defaultTargetBitrateMbps = 4.0
	defaultMaxBitrateMbps    = 8.0
	defaultMinBitrateMbps    = 0.5

	defaultTargetFPS      = 30
	defaultBufferPoolSize = 8
)

// Variables describes the variables that can be used for streaming
// engine control. These structs provide the name and type of
// variable, a function for updating this variable in a Config, and a
// function for validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyMaxWidth,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MaxWidth = parseUint(KeyMaxWidth, v, c) },
		Validate: func(c *Config) {
			if c.MaxWidth == 0 {
				c.LogInvalidField(KeyMaxWidth, uint(defaultMaxWidth))
				c.MaxWidth = defaultMaxWidth
			}
		},
	},
	{
		Name:   KeyMaxHeight,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MaxHeight = parseUint(KeyMaxHeight, v, c) },
		Validate: func(c *Config) {
			if c.MaxHeight == 0 {
				c.LogInvalidField(KeyMaxHeight, uint(defaultMaxHeight))
				c.MaxHeight = defaultMaxHeight
			}
		},
	},
	{
		Name:   KeyBaseQuality,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.BaseQuality = parseUint(KeyBaseQuality, v, c) },
	},
	{
		Name:   KeyMinQuality,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MinQuality = parseUint(KeyMinQuality, v, c) },
	},
	{
		Name:   KeyMaxQuality,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.MaxQuality = parseUint(KeyMaxQuality, v, c) },
	},
	{
		// Min/Base/MaxQuality have no per-field Validate; they are
		// defaulted, re-ordered and clamped together here.
		Name: "QualityBounds",
		Type: "internal",
		Validate: func(c *Config) {
			if c.MinQuality == 0 {
				c.MinQuality = defaultMinQuality
			}
			if c.MaxQuality == 0 || c.MaxQuality > 100 {
				c.MaxQuality = defaultMaxQuality
			}
			if c.MinQuality > c.MaxQuality {
				c.MinQuality, c.MaxQuality = c.MaxQuality, c.MinQuality
			}
			if c.BaseQuality == 0 {
				c.BaseQuality = defaultBaseQuality
			}
			if c.BaseQuality < c.MinQuality {
				c.BaseQuality = c.MinQuality
			}
			if c.BaseQuality > c.MaxQuality {
				c.BaseQuality = c.MaxQuality
			}
		},
	},
	{
		Name:   KeyMinChangeThreshold,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.MinChangeThreshold = parseFloat(KeyMinChangeThreshold, v, c) },
		Validate: func(c *Config) {
			if c.MinChangeThreshold <= 0 {
				c.LogInvalidField(KeyMinChangeThreshold, defaultMinChangeThreshold)
				c.MinChangeThreshold = defaultMinChangeThreshold
			}
		},
	},
	{
		Name:   KeyKeyFrameInterval,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.KeyFrameInterval = parseUint(KeyKeyFrameInterval, v, c) },
		Validate: func(c *Config) {
			if c.KeyFrameInterval == 0 {
				c.LogInvalidField(KeyKeyFrameInterval, uint(defaultKeyFrameInterval))
				c.KeyFrameInterval = defaultKeyFrameInterval
			}
		},
	},
	{
		Name:   KeyBlockSize,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.BlockSize = parseUint(KeyBlockSize, v, c) },
		Validate: func(c *Config) {
			if c.BlockSize == 0 {
				c.LogInvalidField(KeyBlockSize, uint(defaultBlockSize))
				c.BlockSize = defaultBlockSize
			}
		},
	},
	{
		Name:   KeyTargetBitrateMbps,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.TargetBitrateMbps = parseFloat(KeyTargetBitrateMbps, v, c) },
		Validate: func(c *Config) {
			if c.TargetBitrateMbps <= 0 {
				c.LogInvalidField(KeyTargetBitrateMbps, defaultTargetBitrateMbps)
				c.TargetBitrateMbps = defaultTargetBitrateMbps
			}
		},
	},
	{
		Name:   KeyMaxBitrateMbps,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.MaxBitrateMbps = parseFloat(KeyMaxBitrateMbps, v, c) },
		Validate: func(c *Config) {
			if c.MaxBitrateMbps <= 0 {
				c.LogInvalidField(KeyMaxBitrateMbps, defaultMaxBitrateMbps)
				c.MaxBitrateMbps = defaultMaxBitrateMbps
			}
		},
	},
	{
		Name:   KeyMinBitrateMbps,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.MinBitrateMbps = parseFloat(KeyMinBitrateMbps, v, c) },
		Validate: func(c *Config) {
			if c.MinBitrateMbps <= 0 {
				c.LogInvalidField(KeyMinBitrateMbps, defaultMinBitrateMbps)
				c.MinBitrateMbps = defaultMinBitrateMbps
			}
		},
	},
	{
		Name:   KeyTargetFPS,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.TargetFPS = parseUint(KeyTargetFPS, v, c) },
		Validate: func(c *Config) {
			if c.TargetFPS == 0 {
				c.LogInvalidField(KeyTargetFPS, uint(defaultTargetFPS))
				c.TargetFPS = defaultTargetFPS
			}
		},
	},
	{
		Name:   KeyBufferPoolSize,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.BufferPoolSize = parseUint(KeyBufferPoolSize, v, c) },
		Validate: func(c *Config) {
			if c.BufferPoolSize == 0 {
				c.LogInvalidField(KeyBufferPoolSize, uint(defaultBufferPoolSize))
				c.BufferPoolSize = defaultBufferPoolSize
			}
		},
	},
	{
		Name:   KeyAllowRegionalEncode,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.AllowRegionalEncode = parseBool(KeyAllowRegionalEncode, v, c) },
	},
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

func parseFloat(n, v string, c *Config) float64 {
	_v, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected float for param %s", n), "value", v)
	}
	return _v
}

func parseBool(n, v string, c *Config) (b bool) {
	switch v {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expected bool for param %s", n), "value", v)
	}
	return
}
