package config

import (
	"errors"
	"testing"

	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
)

func TestValidateTracks_AllDisabledWrapsSentinel(t *testing.T) {
	c := &Config{}
	err := c.ValidateTracks()
	if err == nil {
		t.Fatalf("expected an error when no ASR track is enabled")
	}
	if !errors.Is(err, pipeline.ErrNoTracksEnabled) {
		t.Fatalf("expected error to wrap pipeline.ErrNoTracksEnabled, got %v", err)
	}
}

func TestValidateTracks_OneEnabledPasses(t *testing.T) {
	c := &Config{EnableWhisper: true}
	if err := c.ValidateTracks(); err != nil {
		t.Fatalf("unexpected error with one track enabled: %v", err)
	}
}
