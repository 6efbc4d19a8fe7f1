package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAppendFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "logs", "deploy.log")

	for _, line := range []string{"first\n", "second\n"} {
		file, err := OpenAppendFile(path, PermLogFile)
		if err != nil {
			t.Fatalf("OpenAppendFile() error = %v", err)
		}
		if _, err := file.WriteString(line); err != nil {
			t.Fatalf("WriteString() error = %v", err)
		}
		file.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("file content = %q, want both lines appended", string(data))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if IsWorldReadable(info.Mode().Perm()) || IsWorldWritable(info.Mode().Perm()) {
		t.Errorf("log file permissions = %04o, want no world access", info.Mode().Perm())
	}
}

func TestOpenAppendFile_Unwritable(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	// Parent "directory" is a regular file
	if _, err := OpenAppendFile(filepath.Join(blocker, "deploy.log"), PermLogFile); err == nil {
		t.Error("OpenAppendFile() expected error when parent is a file")
	}
}

func TestIsWorldReadableWritable(t *testing.T) {
	tests := []struct {
		perm     os.FileMode
		readable bool
		writable bool
	}{
		{0600, false, false},
		{0640, false, false},
		{0644, true, false},
		{0666, true, true},
		{0602, false, true},
	}

	for _, tt := range tests {
		if got := IsWorldReadable(tt.perm); got != tt.readable {
			t.Errorf("IsWorldReadable(%04o) = %v, want %v", tt.perm, got, tt.readable)
		}
		if got := IsWorldWritable(tt.perm); got != tt.writable {
			t.Errorf("IsWorldWritable(%04o) = %v, want %v", tt.perm, got, tt.writable)
		}
	}
}

func TestValidateSecurePermissions(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		perm    os.FileMode
		wantErr bool
	}{
		{"owner only", 0600, false},
		{"group readable", 0640, false},
		{"world readable", 0644, true},
		{"world writable", 0602, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte("secret: x"), 0600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if err := os.Chmod(path, tt.perm); err != nil {
				t.Fatalf("Chmod() error = %v", err)
			}

			err := ValidateSecurePermissions(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecurePermissions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateSecurePermissions(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("ValidateSecurePermissions() expected error for missing file")
	}
}
