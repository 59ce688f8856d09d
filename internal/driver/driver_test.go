package driver

import "testing"

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeRead, ModeWrite, ModeAppend} {
		got, err := ParseMode(m.String())
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", m.String(), err)
		}
		if got != m {
			t.Errorf("ParseMode(%q) = %v", m.String(), got)
		}
	}
	if _, err := ParseMode("rw"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
