package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRepo       = "repository"
	KeySlug       = "slug"
	KeyFromState  = "from"
	KeyToState    = "to"
	KeyEvent      = "event"
	KeySource     = "source"
	KeyScanMethod = "scan_method"
	KeyBroadcast  = "broadcast_id"
	KeyRetries    = "retry_count"
	KeyPluginFile = "plugin_file"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Repository(r string) slog.Attr  { return slog.String(KeyRepo, r) }
func Slug(s string) slog.Attr        { return slog.String(KeySlug, s) }
func FromState(s string) slog.Attr   { return slog.String(KeyFromState, s) }
func ToState(s string) slog.Attr     { return slog.String(KeyToState, s) }
func Event(name string) slog.Attr    { return slog.String(KeyEvent, name) }
func Source(s string) slog.Attr      { return slog.String(KeySource, s) }
func ScanMethod(m string) slog.Attr  { return slog.String(KeyScanMethod, m) }
func BroadcastID(id int64) slog.Attr { return slog.Int64(KeyBroadcast, id) }
func Retries(n int) slog.Attr        { return slog.Int(KeyRetries, n) }
func PluginFile(p string) slog.Attr  { return slog.String(KeyPluginFile, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
