package gateway

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"
)

// envelopeKeys are the wrapper keys list payloads may hide behind, in the
// order they are tried.
var envelopeKeys = []string{"records", "messages", "contacts", "chats", "data", "response", "instances"}

// CanonicalPhone strips the JID domain (everything from "@") and any device
// suffix from peer, leaving the bare phone used as conversation ID.
func CanonicalPhone(peer string) string {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return ""
	}
	if !strings.Contains(peer, "@") {
		return peer
	}
	if jid, err := types.ParseJID(peer); err == nil && jid.User != "" {
		return jid.User
	}
	user, _, _ := strings.Cut(peer, "@")
	user, _, _ = strings.Cut(user, ":")
	return user
}

// RemoteJID builds the user JID of a bare phone. Inputs that already carry a
// domain are returned unchanged.
func RemoteJID(phone string) string {
	if phone == "" || strings.Contains(phone, "@") {
		return phone
	}
	return types.NewJID(phone, types.DefaultUserServer).String()
}

// Epoch magnitudes past which a number is read in a finer unit. Seconds only
// cross msEpochThreshold in the year 33658, milliseconds cross usEpochThreshold
// in 5138 and microseconds cross nsEpochThreshold in 5138 as well.
const (
	msEpochThreshold = 1e12
	usEpochThreshold = 1e14
	nsEpochThreshold = 1e17
)

// timestampLayouts are tried in order on non-numeric strings. Layouts
// without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
	time.DateOnly,
}

// ParseTimestamp converts epoch seconds, milliseconds, microseconds or
// nanoseconds, numeric strings, ISO-8601 strings and protobuf {low, high}
// longs to an absolute UTC time. Fractional epochs keep their sub-second
// part.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return fromEpoch(n)
		}
		if f, err := t.Float64(); err == nil {
			return fromEpochFloat(f)
		}
	case float64:
		return fromEpochFloat(t)
	case int:
		return fromEpoch(int64(t))
	case int64:
		return fromEpoch(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(n)
		}
		if isDecimal(s) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return fromEpochFloat(f)
			}
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	case map[string]any:
		low, okLow := toInt64(t["low"])
		high, okHigh := toInt64(t["high"])
		if okLow && okHigh {
			return fromEpoch(high<<32 | int64(uint32(low)))
		}
	}
	return time.Time{}, false
}

func fromEpoch(n int64) (time.Time, bool) {
	switch {
	case n <= 0:
		return time.Time{}, false
	case n >= nsEpochThreshold:
		return time.Unix(0, n).UTC(), true
	case n >= usEpochThreshold:
		return time.UnixMicro(n).UTC(), true
	case n >= msEpochThreshold:
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func fromEpochFloat(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f >= math.MaxInt64 {
		return time.Time{}, false
	}
	if f == math.Trunc(f) {
		return fromEpoch(int64(f))
	}
	secs := f
	switch {
	case f >= nsEpochThreshold:
		secs = f / 1e9
	case f >= usEpochThreshold:
		secs = f / 1e6
	case f >= msEpochThreshold:
		secs = f / 1e3
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC(), true
}

// isDecimal reports whether s is a plain decimal number such as
// "1700000000.5", so ParseFloat never sees "NaN" or "Inf".
func isDecimal(s string) bool {
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot:
			dot = true
		case r == '-' && i == 0:
		default:
			return false
		}
	}
	return true
}

// Truthy coerces remote boolean representations: true, 1, "true", "1",
// "yes".
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true
		}
	}
	return false
}

// explicitlyFalse reports whether v is a present, falsy boolean-ish value.
// Missing fields are not false.
func explicitlyFalse(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return !t
	case json.Number, float64, int:
		return !Truthy(t)
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "false", "0", "no", "n":
			return true
		}
	}
	return false
}

// MessageBody returns the first non-empty text among the plain and
// extended-text shapes of a message record.
func MessageBody(rec map[string]any) string {
	sources := []map[string]any{}
	if m, ok := rec["message"].(map[string]any); ok {
		sources = append(sources, m)
	}
	sources = append(sources, rec)
	for _, src := range sources {
		if s := firstString(src, "conversation", "extendedTextMessage.text", "body", "text", "content"); s != "" {
			return s
		}
	}
	return ""
}

// unwrapList finds the record list inside v, following envelope keys.
func unwrapList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		for _, key := range envelopeKeys {
			if inner, ok := t[key]; ok {
				if list, ok := unwrapList(inner); ok {
					return list, true
				}
			}
		}
	}
	return nil, false
}

// lookup follows a dotted path through nested objects.
func lookup(m map[string]any, path string) any {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

// firstString returns the first non-empty string found at paths.
func firstString(m map[string]any, paths ...string) string {
	for _, p := range paths {
		switch v := lookup(m, p).(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// firstValue returns the first non-nil value found at paths.
func firstValue(m map[string]any, paths ...string) any {
	for _, p := range paths {
		if v := lookup(m, p); v != nil {
			return v
		}
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toInt(v any) int {
	n, _ := toInt64(v)
	return int(n)
}
