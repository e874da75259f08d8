package fetch

import (
	"errors"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain http",
			raw:  "http://example.com/video.mp4",
			want: "http://example.com/video.mp4",
		},
		{
			name: "https with query",
			raw:  "https://cdn.example.com/v/1?token=abc",
			want: "https://cdn.example.com/v/1?token=abc",
		},
		{
			name: "scheme and host lowercased",
			raw:  "HTTP://EXAMPLE.COM/Video.MP4",
			want: "http://example.com/Video.MP4",
		},
		{
			name: "surrounding whitespace trimmed",
			raw:  "  http://example.com/a \n",
			want: "http://example.com/a",
		},
		{
			name: "trailing dot host",
			raw:  "http://example.com./a",
			want: "http://example.com/a",
		},
		{
			name: "idn host to punycode",
			raw:  "http://bücher.example/a",
			want: "http://xn--bcher-kva.example/a",
		},
		{
			name: "port preserved",
			raw:  "http://example.com:8080/a",
			want: "http://example.com:8080/a",
		},
		{
			name: "ipv4 literal",
			raw:  "http://127.0.0.1:9000/clip",
			want: "http://127.0.0.1:9000/clip",
		},
		{
			name: "ipv6 literal keeps brackets",
			raw:  "http://[::1]:9000/clip",
			want: "http://[::1]:9000/clip",
		},
		{
			name: "ipv6 literal without port",
			raw:  "http://[::1]/clip",
			want: "http://[::1]/clip",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateURL(tc.raw)
			if err != nil {
				t.Fatalf("ValidateURL(%q) error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("ValidateURL(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestValidateURL_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "whitespace only", raw: "   "},
		{name: "no scheme", raw: "example.com/video.mp4"},
		{name: "ftp scheme", raw: "ftp://example.com/video.mp4"},
		{name: "file scheme", raw: "file:///etc/passwd"},
		{name: "missing host", raw: "http:///video.mp4"},
		{name: "control characters", raw: "http://exa\x00mple.com/a"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateURL(tc.raw)
			if err == nil {
				t.Fatalf("ValidateURL(%q) accepted, want error", tc.raw)
			}
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("error %v does not wrap ErrInvalidURL", err)
			}
		})
	}
}
