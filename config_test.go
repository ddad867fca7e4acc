package imagefinder

import (
	"net/url"
	"testing"
)

func TestIsTrustedDomain(t *testing.T) {
	config := DefaultConfig()

	tests := []struct {
		rawURL string
		want   bool
	}{
		{"https://amazon.com/dp/B000", true},
		{"https://www.amazon.com/dp/B000", true},
		{"https://images-na.ssl-images.amazon.com/img.jpg", true},
		{"https://notamazon.com/dp/B000", false},
		{"https://amazon.com.evil.example/dp/B000", false},
		{"https://blog.example.com/review", false},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.rawURL)
		if err != nil {
			t.Fatalf("failed to parse %s: %v", tt.rawURL, err)
		}
		if got := config.isTrustedDomain(u); got != tt.want {
			t.Errorf("isTrustedDomain(%s) = %v, want %v", tt.rawURL, got, tt.want)
		}
	}

	if config.isTrustedDomain(nil) {
		t.Error("nil URL must not be trusted")
	}
}

func TestProductTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"short name", "Widget Pro", []string{"widget", "pro"}},
		{"truncates to three", "Sony WH-1000XM5 Wireless Headphones Black", []string{"sony", "wh-1000xm5", "wireless"}},
		{"lowercases", "WIDGET", []string{"widget"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := productTokens(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("productTokens(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestContainsAnyToken(t *testing.T) {
	tokens := []string{"widget", "pro"}

	if !containsAnyToken("https://cdn.example.com/Widget-main.jpg", tokens) {
		t.Error("expected case-insensitive token match")
	}
	if containsAnyToken("https://cdn.example.com/gadget.jpg", tokens) {
		t.Error("unexpected match")
	}
	if containsAnyToken("anything", nil) {
		t.Error("no tokens must never match")
	}
}
