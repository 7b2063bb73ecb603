package importer

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Historical snapshot dumps contain two recurring defects: trailing commas
// before a closing brace or bracket, and unquoted timestamp values emitted
// by an old serializer. Both repairs live here at the ingestion boundary and
// nowhere near the cache key or store logic.
var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareTimestampRe = regexp.MustCompile(`:\s*(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?: [A-Z]{2,5})?)\s*([,}\]])`)
)

// LenientParse decodes a snapshot document, applying best-effort repairs if
// strict parsing fails. Input that is still malformed after repair is an
// error; repairs are never guessed beyond the two known defects.
func LenientParse(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err == nil {
		return doc, nil
	}

	repaired := bareTimestampRe.ReplaceAll(raw, []byte(`: "$1"$2`))
	repaired = trailingCommaRe.ReplaceAll(repaired, []byte(`$1`))

	if err := json.Unmarshal(repaired, &doc); err != nil {
		return nil, fmt.Errorf("snapshot not parseable after repair: %w", err)
	}
	return doc, nil
}
