package markup

import "testing"

func TestEscapeForMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Acme", want: "Acme"},
		{name: "punctuation", in: "v2.0 (beta)!", want: "v2\\.0 \\(beta\\)\\!"},
		{name: "category", in: "feature_launch", want: "feature\\_launch"},
		{name: "url", in: "https://acme.test/a-b?x=1", want: "https://acme\\.test/a\\-b?x\\=1"},
		{name: "backslash", in: `a\b`, want: `a\\b`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscapeForMarkdown(tt.in); got != tt.want {
				t.Fatalf("EscapeForMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
