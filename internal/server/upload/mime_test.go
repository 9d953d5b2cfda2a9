package upload

import "testing"

func TestResolveContentType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		declared string
		expected string
	}{
		{"known extension", "report.pdf", "application/octet-stream", "application/pdf"},
		{"case insensitive", "PHOTO.JPG", "application/octet-stream", "image/jpeg"},
		{"html", "index.html", "application/octet-stream", "text/html"},
		{"unknown extension falls back", "data.weirdext", "application/x-custom", "application/x-custom"},
		{"no extension falls back", "Makefile", "text/x-makefile", "text/x-makefile"},
		{"trailing dot falls back", "weird.", "application/octet-stream", "application/octet-stream"},
		{"only last extension counts", "archive.tar.gz", "application/octet-stream", "application/gzip"},
		{"empty filename falls back", "", "application/octet-stream", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveContentType(tt.filename, tt.declared)
			if got != tt.expected {
				t.Errorf("ResolveContentType(%q, %q) = %q, want %q",
					tt.filename, tt.declared, got, tt.expected)
			}
		})
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"file.txt", "txt"},
		{"archive.tar.gz", "gz"},
		{"noext", ""},
		{"trailing.", ""},
		{".hidden", "hidden"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := extension(tt.input); got != tt.expected {
			t.Errorf("extension(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
