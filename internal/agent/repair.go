package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	kvPairRe        = regexp.MustCompile(`"?([A-Za-z_][A-Za-z0-9_]*)"?\s*[:=]\s*"([^"]*)"`)
)

// RepairJSON coerces model-produced tool arguments into valid JSON. Models
// behind cheap proxies emit trailing commas, single quotes, fenced blocks
// and prose around the object; each stage strips one class of damage. The
// result is always valid JSON, worst case an empty object.
func RepairJSON(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}

	if fixed := trailingCommaRe.ReplaceAllString(raw, "$1"); json.Valid([]byte(fixed)) {
		return json.RawMessage(fixed)
	}

	swapped := trailingCommaRe.ReplaceAllString(strings.ReplaceAll(raw, "'", `"`), "$1")
	if json.Valid([]byte(swapped)) {
		return json.RawMessage(swapped)
	}

	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		inner := trailingCommaRe.ReplaceAllString(strings.TrimSpace(m[1]), "$1")
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner)
		}
	}

	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		inner := trailingCommaRe.ReplaceAllString(raw[start:end+1], "$1")
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner)
		}
	}

	// Last resort: scrape key/value pairs out of the wreckage.
	if pairs := kvPairRe.FindAllStringSubmatch(raw, -1); len(pairs) > 0 {
		scraped := map[string]string{}
		for _, pair := range pairs {
			scraped[pair[1]] = pair[2]
		}
		if data, err := json.Marshal(scraped); err == nil {
			return json.RawMessage(data)
		}
	}

	return json.RawMessage(`{}`)
}
