package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithin(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "plots")
	outside := filepath.Join(tmp, "elsewhere")
	for _, dir := range []string{safe, outside} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(safe, "link")); err != nil {
		t.Fatalf("create symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "run.png"), false},
		{"new nested file", filepath.Join(safe, "a", "b", "run.png"), false},
		{"dir itself", safe, false},
		{"dot dot", filepath.Join(safe, "..", "run.png"), true},
		{"sibling", filepath.Join(outside, "run.png"), true},
		{"through symlink", filepath.Join(safe, "link", "run.png"), true},
		{"new file under symlink", filepath.Join(safe, "link", "new", "run.png"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Within(tt.path, safe)
			if (err != nil) != tt.wantErr {
				t.Errorf("Within(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()

	if err := ValidateOutputPath(filepath.Join(b, "x.db"), a, b); err != nil {
		t.Errorf("path in second dir rejected: %v", err)
	}
	if err := ValidateOutputPath(filepath.Join(b, "..", "x.db"), a, b); err == nil {
		t.Error("path above both dirs accepted")
	}
	if err := ValidateOutputPath(filepath.Join(os.TempDir(), "balltrack.png")); err != nil {
		t.Errorf("temp dir rejected by default: %v", err)
	}
}

func TestOutputFile(t *testing.T) {
	dir := t.TempDir()

	path, err := OutputFile(dir, "../../etc/passwd", ".png")
	if err != nil {
		t.Fatalf("OutputFile: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("OutputFile = %q, want a file in %q", path, dir)
	}
	if !strings.HasSuffix(path, ".png") {
		t.Errorf("OutputFile = %q, want .png suffix", path)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "unknown"},
		{"rolling-ball_01.v2", "rolling-ball_01.v2"},
		{"pitch test / half 2", "pitch_test_half_2"},
		{"../../etc/passwd", "etc_passwd"},
		{"...", "unknown"},
		{"ball\x00name", "ball_name"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := SanitizeFilename(strings.Repeat("a", 300)); len(got) != 128 {
		t.Errorf("long name length = %d, want 128", len(got))
	}
}
