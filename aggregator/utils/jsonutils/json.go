package jsonutils

import (
	"encoding/json"
	"strings"
)

// ToJSON renders v as indented JSON for terminal output; "" if v cannot be
// marshalled.
func ToJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
