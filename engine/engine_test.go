package engine

import "testing"

// Functions are usable on a fresh connection without registering a module.
func TestOpenRegistersFunctions(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	var dims int64
	if err := db.QueryRow(`SELECT vec_length(vec_f32('[1, 2, 3, 4]'))`).Scan(&dims); err != nil {
		t.Fatalf("vec_length failed: %v", err)
	}
	if dims != 4 {
		t.Fatalf("vec_length = %d, want 4", dims)
	}

	// A second Open must tolerate the functions being registered already.
	other, err := Open(":memory:")
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer other.Close()
	var version string
	if err := other.QueryRow(`SELECT vec_version()`).Scan(&version); err != nil {
		t.Fatalf("vec_version failed: %v", err)
	}
	if version != Version {
		t.Fatalf("vec_version = %q, want %q", version, Version)
	}
}
