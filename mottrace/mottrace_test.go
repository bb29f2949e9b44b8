package mottrace

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestTrackCreatedLogsIDAndAutoIDFlag(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	l := New(log)

	l.TrackCreated(7, true)

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].Data["track_id"]; got != int64(7) {
		t.Errorf("track_id: got %v want 7", got)
	}
	if got := entries[0].Data["auto_id"]; got != true {
		t.Errorf("auto_id: got %v want true", got)
	}
}

func TestNewWithLevelRejectsUnknownLevel(t *testing.T) {
	if _, err := NewWithLevel("not-a-level"); err == nil {
		t.Fatal("expected an error for an unknown level name")
	}
}

func TestNewFallsBackToStandardLoggerOnNil(t *testing.T) {
	l := New(nil)
	if l.log == nil {
		t.Fatal("expected a non-nil fallback logger")
	}
}
