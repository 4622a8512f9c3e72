package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"Repository", KeyRepo, "acme/thing", Repository("acme/thing")},
		{"Slug", KeySlug, "thing", Slug("thing")},
		{"FromState", KeyFromState, "unknown", FromState("unknown")},
		{"ToState", KeyToState, "checking", ToState("checking")},
		{"Event", KeyEvent, "transition", Event("transition")},
		{"Source", KeySource, "refresh_state", Source("refresh_state")},
		{"ScanMethod", KeyScanMethod, "header", ScanMethod("header")},
		{"PluginFile", KeyPluginFile, "thing/thing.php", PluginFile("thing/thing.php")},
	}
	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			t.Errorf("%s: key = %q, want %q", tc.name, tc.attr.Key, tc.attrKey)
		}
		if tc.attr.Value.String() != tc.attrVal {
			t.Errorf("%s: value = %q, want %q", tc.name, tc.attr.Value.String(), tc.attrVal)
		}
	}
}

func TestErrorAttr(t *testing.T) {
	if got := Error(nil).Value.String(); got != "" {
		t.Errorf("nil error value = %q, want empty", got)
	}
	if got := Error(errors.New("boom")).Value.String(); got != "boom" {
		t.Errorf("error value = %q, want boom", got)
	}
}
