package slug

import "testing"

func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Widget Pro", "widget-pro"},
		{"punctuation", "Widget: Pro! (2024 Edition)", "widget-pro-2024-edition"},
		{"underscores", "widget_pro_max", "widget-pro-max"},
		{"accents", "Café Crème Brûlée", "cafe-creme-brulee"},
		{"collapses hyphens", "widget -- pro", "widget-pro"},
		{"trims hyphens", "-widget-", "widget"},
		{"empty", "", ""},
		{"only symbols", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.input); got != tt.want {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerateLimitsLength(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "widget "
	}
	got := Generate(long)
	if len(got) > 100 {
		t.Errorf("slug length = %d, want <= 100", len(got))
	}
	if got[len(got)-1] == '-' {
		t.Errorf("truncated slug ends with hyphen: %q", got)
	}
}

func TestFromProduct(t *testing.T) {
	if got := FromProduct("Widget Pro"); got != "widget-pro" {
		t.Errorf("FromProduct = %q, want widget-pro", got)
	}
	// Names that slug to nothing still need a usable archive key.
	if got := FromProduct("???"); got != "product" {
		t.Errorf("FromProduct fallback = %q, want product", got)
	}
}

func TestFromImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/images/Widget-Main.jpg", "widget-main"},
		{"https://cdn.example.com/images/hero.png?width=800&v=3", "hero"},
		{"https://cdn.example.com/widget.product.webp", "widgetproduct"},
		{"no-slashes.jpg", "no-slashes"},
	}

	for _, tt := range tests {
		if got := FromImageURL(tt.url); got != tt.want {
			t.Errorf("FromImageURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
