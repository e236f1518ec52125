// Package leads fires at most one ad-conversion event per conversation.
package leads

import (
	"fmt"
	"strings"
)

// MetadataKeyLeadTracked is the contact metadata key written back to the
// provider once a lead event was accepted.
const MetadataKeyLeadTracked = "lead_tracked"

// MetadataEntry is one contact metadata item as delivered in the webhook
// payload. Values arrive as strings, booleans or numbers.
type MetadataEntry struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// ShouldTrackLead reports whether a conversation still needs its lead event.
// It is false only when the lead tag is present and truthy.
func ShouldTrackLead(metadata []MetadataEntry) bool {
	for _, entry := range metadata {
		if !strings.EqualFold(strings.TrimSpace(entry.Key), MetadataKeyLeadTracked) {
			continue
		}
		if truthy(entry.Value) {
			return false
		}
	}
	return true
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		}
		return false
	default:
		return truthy(fmt.Sprint(v))
	}
}
