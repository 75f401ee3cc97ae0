package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"+57 300 123 4567": "573001234567",
		"3001234567":       "573001234567",
		"573001234567":     "573001234567",
		"+34-600-111-222":  "34600111222",
		"":                 "",
	}

	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithPlus(t *testing.T) {
	if got := WithPlus("3001234567"); got != "+573001234567" {
		t.Errorf("expected +573001234567, got %q", got)
	}
	if got := WithPlus("+34600111222"); got != "+34600111222" {
		t.Errorf("expected number with prefix untouched, got %q", got)
	}
	if got := WithPlus("  "); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
