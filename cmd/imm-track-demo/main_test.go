package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScenarioFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenarioParsesValidYAML(t *testing.T) {
	path := writeScenarioFile(t, `
classes: [car, pedestrian]
frames:
  - timestamp: 0.0
    objects:
      - x: 1.0
        y: 2.0
        length: 4
        width: 2
        height: 1.5
        class: car
        score: 0.9
`)
	sc, err := loadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Classes) != 2 || len(sc.Frames) != 1 || len(sc.Frames[0].Objects) != 1 {
		t.Fatalf("unexpected parse result: %+v", sc)
	}
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenarioFile(t, `
classes: [car]
frames:
  - timestamp: 0.0
    objects:
      - x: 1.0
        y: 2.0
        unexpected_field: true
`)
	if _, err := loadScenario(path); err == nil {
		t.Fatal("expected an error for an unrecognized YAML key")
	}
}
