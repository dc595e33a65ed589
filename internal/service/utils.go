package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/domain"
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return validationf("%s is required", strings.Join(missing, ", "))
}

// metaJSON normalizes caller metadata into a JSON document. Plain strings are
// wrapped as {"note": ...}.
func metaJSON(meta json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(meta))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"note": trimmed})
	return wrapped
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
