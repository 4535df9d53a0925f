package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errNoName
	}
	s.valid = true
	return nil
}

type stringErr string

func (e stringErr) Error() string { return string(e) }

const errNoName = stringErr("name is required")

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "hibi")
	p := writeFile(t, "name: ${SAMPLE_NAME}\nport: 9090\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "hibi" || s.Port != 9090 || !s.valid {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	p := writeFile(t, "port: 1\n")
	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadIfExists_MissingKeepsDefaults(t *testing.T) {
	s := sample{Name: "default", Port: 8080}
	read, err := LoadIfExists(filepath.Join(t.TempDir(), "absent.yaml"), &s)
	if err != nil {
		t.Fatalf("LoadIfExists: %v", err)
	}
	if read {
		t.Error("read = true for a missing file")
	}
	if s.Name != "default" || s.Port != 8080 || !s.valid {
		t.Errorf("defaults changed: %+v", s)
	}
}

func TestLoadIfExists_MissingStillValidates(t *testing.T) {
	var s sample
	if _, err := LoadIfExists(filepath.Join(t.TempDir(), "absent.yaml"), &s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadIfExists_OverlaysFile(t *testing.T) {
	p := writeFile(t, "port: 9000\n")
	s := sample{Name: "default", Port: 8080}
	read, err := LoadIfExists(p, &s)
	if err != nil || !read {
		t.Fatalf("read=%v err=%v", read, err)
	}
	if s.Name != "default" || s.Port != 9000 {
		t.Errorf("loaded = %+v", s)
	}
}
