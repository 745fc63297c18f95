package s3sync

import "testing"

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix   string
		relPath  string
		expected string
	}{
		{"", "nature/wallhaven-x1.jpg", "nature/wallhaven-x1.jpg"},
		{"backups", "wallhaven-x1.jpg", "backups/wallhaven-x1.jpg"},
		{"backups/", "nature/wallhaven-x1.jpg", "backups/nature/wallhaven-x1.jpg"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, tt.relPath); got != tt.expected {
			t.Errorf("objectKey(%q, %q) = %q, expected %q", tt.prefix, tt.relPath, got, tt.expected)
		}
	}
}
