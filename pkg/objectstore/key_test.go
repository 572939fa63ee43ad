package objectstore

import (
	"strings"
	"testing"
	"time"
)

func TestNewKey(t *testing.T) {
	now := time.Unix(1730000000, 0)
	key := NewKey("alice@example.com", "report.pdf", SourceUser, now)

	if !strings.HasPrefix(key, "users/alice@example.com/uploads/1730000000_") {
		t.Fatalf("key = %q, unexpected prefix", key)
	}
	if !strings.HasSuffix(key, "_report.pdf") {
		t.Fatalf("key = %q, unexpected suffix", key)
	}
}

func TestNewKey_ToolSource(t *testing.T) {
	now := time.Unix(1730000000, 0)
	key := NewKey("alice@example.com", "plot.png", SourceTool, now)
	if !strings.Contains(key, "/generated/") {
		t.Fatalf("key = %q, expected /generated/ segment", key)
	}
}

func TestNewKey_SanitizesPathSeparators(t *testing.T) {
	now := time.Unix(1730000000, 0)
	key := NewKey("alice@example.com", "../../etc/passwd", SourceUser, now)
	if strings.Contains(key, "..") {
		t.Fatalf("key = %q, should not contain ..", key)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		key     string
		wantErr error
	}{
		{"valid", "alice@example.com", "users/alice@example.com/uploads/1_a_x.png", nil},
		{"empty", "alice@example.com", "", ErrInvalidKey},
		{"traversal", "alice@example.com", "users/alice@example.com/../bob/x", ErrInvalidKey},
		{"absolute", "alice@example.com", "/etc/passwd", ErrInvalidKey},
		{"wrong namespace", "alice@example.com", "users/bob@example.com/uploads/x", ErrAccessDenied},
		{"bad chars", "alice@example.com", "users/alice@example.com/uploads/<script>", ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.user, tt.key)
			if err != tt.wantErr {
				t.Errorf("ValidateKey(%q, %q) = %v, want %v", tt.user, tt.key, err, tt.wantErr)
			}
		})
	}
}
