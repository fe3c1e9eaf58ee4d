/*
DESCRIPTION
  config_test.go provides testing for the Config struct methods
  (Validate and Update).

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

func TestValidateDefaults(t *testing.T) {
	dl := &dumbLogger{}

	want := Config{
		Logger:             dl,
		MaxWidth:           defaultMaxWidth,
		MaxHeight:          defaultMaxHeight,
		BaseQuality:        defaultBaseQuality,
		MinQuality:         defaultMinQuality,
		MaxQuality:         defaultMaxQuality,
		MinChangeThreshold: defaultMinChangeThreshold,
		KeyFrameInterval:   defaultKeyFrameInterval,
		BlockSize:          defaultBlockSize,
		TargetBitrateMbps:  defaultTargetBitrateMbps,
		MaxBitrateMbps:     defaultMaxBitrateMbps,
		MinBitrateMbps:     defaultMinBitrateMbps,
		TargetFPS:          defaultTargetFPS,
		BufferPoolSize:     defaultBufferPoolSize,
	}

	got := Config{Logger: dl}
	if err := (&got).Validate(); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if !cmp.Equal(got, want) {
		t.Errorf("configs not equal\nwant: %+v\ngot: %+v", want, got)
	}
}

func TestValidateReordersInvertedQualityBounds(t *testing.T) {
	dl := &dumbLogger{}
	got := Config{Logger: dl, MinQuality: 90, MaxQuality: 10, BaseQuality: 50}
	if err := (&got).Validate(); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got.MinQuality != 10 || got.MaxQuality != 90 {
		t.Fatalf("got min=%d max=%d, want reordered to min=10 max=90", got.MinQuality, got.MaxQuality)
	}
}

func TestValidateClampsBaseQualityWithinBounds(t *testing.T) {
	dl := &dumbLogger{}
	got := Config{Logger: dl, MinQuality: 40, MaxQuality: 60, BaseQuality: 5}
	if err := (&got).Validate(); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if got.BaseQuality != 40 {
		t.Fatalf("got base quality %d, want clamped up to min 40", got.BaseQuality)
	}
}

func TestUpdate(t *testing.T) {
	dl := &dumbLogger{}
	c := Config{Logger: dl}

	updateMap := map[string]string{
		KeyMaxWidth:            "1280",
		KeyMaxHeight:           "720",
		KeyBaseQuality:         "65",
		KeyMinQuality:          "15",
		KeyMaxQuality:          "90",
		KeyMinChangeThreshold:  "0.2",
		KeyKeyFrameInterval:    "150",
		KeyBlockSize:           "32",
		KeyTargetBitrateMbps:   "3.5",
		KeyMaxBitrateMbps:      "6",
		KeyMinBitrateMbps:      "0.25",
		KeyTargetFPS:           "60",
		KeyBufferPoolSize:      "16",
		KeyAllowRegionalEncode: "true",
	}
	c.Update(updateMap)

	want := Config{
		Logger:              dl,
		MaxWidth:            1280,
		MaxHeight:           720,
		BaseQuality:         65,
		MinQuality:          15,
		MaxQuality:          90,
		MinChangeThreshold:  0.2,
		KeyFrameInterval:    150,
		BlockSize:           32,
		TargetBitrateMbps:   3.5,
		MaxBitrateMbps:      6,
		MinBitrateMbps:      0.25,
		TargetFPS:           60,
		BufferPoolSize:      16,
		AllowRegionalEncode: true,
	}
	if !cmp.Equal(c, want) {
		t.Errorf("configs not equal\nwant: %+v\ngot: %+v", want, c)
	}
}

func TestUpdateIgnoresUnknownKeys(t *testing.T) {
	dl := &dumbLogger{}
	c := Config{Logger: dl}
	c.Update(map[string]string{"NotARealKey": "42"})
	if !cmp.Equal(c, Config{Logger: dl}) {
		t.Fatal("expected unknown keys to be ignored")
	}
}
