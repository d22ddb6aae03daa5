package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWithExplicitPath(t *testing.T) {
	d, err := New("/tmp/fable-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Path() != "/tmp/fable-test" {
		t.Fatalf("unexpected path %q", d.Path())
	}
	if got := d.ConfigPath(); got != filepath.Join("/tmp/fable-test", ConfigFileName) {
		t.Fatalf("unexpected config path %q", got)
	}
}

func TestNewDefaultsToUserHome(t *testing.T) {
	d, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no user home available: %v", err)
	}
	if d.Path() != filepath.Join(home, DefaultDirName) {
		t.Fatalf("unexpected default path %q", d.Path())
	}
}

func TestEnsureExists(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "fablehome"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Exists() {
		t.Fatal("directory should not exist yet")
	}

	if err := d.EnsureExists(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Exists() {
		t.Fatal("expected home directory to exist")
	}
	if _, err := os.Stat(d.BundlesDir()); err != nil {
		t.Fatalf("expected bundles directory: %v", err)
	}
	if d.ConfigExists() {
		t.Fatal("no config file was written")
	}
}

func TestEnsureBookBundleDir(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.EnsureBookBundleDir("b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(d.BundlesDir(), "b1")
	if d.BookBundleDir("b1") != want {
		t.Fatalf("unexpected bundle dir %q", d.BookBundleDir("b1"))
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected book bundle directory: %v", err)
	}
}
