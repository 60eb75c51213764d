// Package event defines the canonical feed event shape and the normalizer
// that maps arbitrary upstream records into it.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event is the canonical, immutable representation of one feed record.
// Timestamp is kept verbatim as upstream text; the formats vary between
// capture strategies and are not canonicalized.
type Event struct {
	ID          string         `json:"arlo_event_id"`
	DeviceName  string         `json:"device_name"`
	EventType   string         `json:"event_type"`
	Timestamp   string         `json:"timestamp"`
	Description string         `json:"description"`
	Raw         map[string]any `json:"raw,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
}

// Unknown is the sentinel for absent device and type fields.
const Unknown = "unknown"

// hashIDLen is the hex-character length of derived identities.
const hashIDLen = 32

// Upstream key candidates, in priority order. The first present (for
// identity) or first non-empty (for the other fields) wins.
var (
	identityKeys    = []string{"id", "eventId", "arloid", "transId"}
	deviceKeys      = []string{"deviceName", "deviceId", "from"}
	typeKeys        = []string{"type", "action"}
	typeKeysAfter   = []string{"eventType"}
	timestampKeys   = []string{"createdDate", "utcCreatedDate", "timestamp", "localCreatedDate"}
	descriptionKeys = []string{"description", "reason"}
)

// Normalize maps one raw upstream record to an Event. It is total: absent
// or malformed fields degrade to sentinels, never to an error.
func Normalize(raw map[string]any) Event {
	eventType := firstString(raw, typeKeys)
	if eventType == "" {
		// The Arlo API sometimes nests the type under a properties object.
		if props, ok := raw["properties"].(map[string]any); ok {
			eventType = firstString(props, []string{"type"})
		}
	}
	if eventType == "" {
		eventType = firstString(raw, typeKeysAfter)
	}
	if eventType == "" {
		eventType = Unknown
	}

	device := firstString(raw, deviceKeys)
	if device == "" {
		device = Unknown
	}

	return Event{
		ID:          DeriveID(raw),
		DeviceName:  device,
		EventType:   eventType,
		Timestamp:   firstString(raw, timestampKeys),
		Description: firstString(raw, descriptionKeys),
		Raw:         raw,
	}
}

// DeriveID produces a stable, globally unique identity for a raw record.
// Known identity-bearing keys take priority; otherwise the record is
// canonicalized (encoding/json emits map keys in sorted order) and a
// truncated SHA-256 of that form is used.
func DeriveID(raw map[string]any) string {
	for _, key := range identityKeys {
		if v, ok := raw[key]; ok && v != nil {
			return stringify(v)
		}
	}
	blob, err := json.Marshal(raw)
	if err != nil {
		// Unmarshalable values cannot come out of a JSON decode; fall back
		// to the fmt rendering so the function stays total.
		blob = []byte(fmt.Sprintf("%v", raw))
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])[:hashIDLen]
}

// firstString returns the first candidate key whose value renders to a
// non-empty string.
func firstString(m map[string]any, keys []string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render integers without a
		// trailing .0 so upstream numeric ids round-trip cleanly.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
