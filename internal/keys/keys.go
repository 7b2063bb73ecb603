// Package keys derives the deterministic cache keys under which provider
// responses are stored. The key formats are a persisted convention shared
// with existing cached data and must stay stable:
//
//	flight: {DEP}_{ARR}_{YYYY-MM-DD}_{YYYY-MM-DD}
//	forex:  {CCY1}-{CCY2}_{YYYY-MM-DD-HH-MM-SS}
package keys

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chasquifx/chasquifx-cache/internal/docpath"
	"github.com/sirupsen/logrus"
)

// FlightKeyTemplate identifies a flight search by its parameters alone.
const FlightKeyTemplate = "{departure_id}_{arrival_id}_{outbound_date}_{return_date}"

// ForexKeyTemplate includes the snapshot timestamp: rates are point-in-time,
// so the same pair fetched at different times yields different keys.
const ForexKeyTemplate = "{q}_{created_at}"

// FlightKeyPaths and ForexKeyPaths are the dotted paths extracted from a raw
// provider response to fill the matching template.
var (
	FlightKeyPaths = []string{
		"search_parameters.departure_id",
		"search_parameters.arrival_id",
		"search_parameters.outbound_date",
		"search_parameters.return_date",
	}
	ForexKeyPaths = []string{
		"search_parameters.q",
		"search_metadata.created_at",
	}
)

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)
	timestampRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (\d{2}):(\d{2}):(\d{2})(?: \S+)?$`)
)

// DerivationError reports a template/field mismatch during structured key
// derivation. Callers fall back to Fallback rather than failing the
// surrounding cache operation.
type DerivationError struct {
	Template    string
	Placeholder string
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("key derivation: template %q has no field for placeholder %q", e.Template, e.Placeholder)
}

// NormalizeTimestamp rewrites "YYYY-MM-DD HH:MM:SS <TZ>" timestamps into a
// key-safe token: the space separator becomes a hyphen, the time colons
// become hyphens, and the timezone suffix is dropped
// ("2025-05-17 02:33:39 UTC" -> "2025-05-17-02-33-39"). Anything else is
// returned unchanged.
func NormalizeTimestamp(s string) string {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return fmt.Sprintf("%s-%s-%s-%s", m[1], m[2], m[3], m[4])
}

// Derive extracts the given dotted paths from doc and substitutes each
// {placeholder} in template with the value whose path ends in that name.
// Missing fields substitute "null" - partial upstream data must not block
// caching of what is present. A placeholder with no corresponding path is a
// *DerivationError.
func Derive(doc map[string]any, paths []string, template string) (string, error) {
	fields := make(map[string]string, len(paths))
	for path, v := range docpath.Extract(doc, paths) {
		fields[docpath.Leaf(path)] = formatValue(v)
	}

	var derr error
	key := placeholderRe.ReplaceAllStringFunc(template, func(ph string) string {
		name := ph[1 : len(ph)-1]
		v, ok := fields[name]
		if !ok {
			if derr == nil {
				derr = &DerivationError{Template: template, Placeholder: name}
			}
			return ph
		}
		return v
	})
	if derr != nil {
		return "", derr
	}
	return key, nil
}

// Fallback joins the extracted field values with underscores in path order.
// It is the deterministic last resort when structured derivation fails and
// never errors.
func Fallback(doc map[string]any, paths []string) string {
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		v, _ := docpath.Lookup(doc, p)
		parts = append(parts, formatValue(v))
	}
	return strings.Join(parts, "_")
}

// DeriveOrFallback attempts structured derivation and, on a derivation
// failure, logs a warning and returns the concatenation fallback. The
// returned key is always usable.
func DeriveOrFallback(log *logrus.Entry, doc map[string]any, paths []string, template string) string {
	key, err := Derive(doc, paths, template)
	if err != nil {
		log.WithError(err).WithField("template", template).Warn("Structured key derivation failed, using fallback key")
		return Fallback(doc, paths)
	}
	return key
}

// FlightKey builds the canonical flight cache key directly from request
// parameters.
func FlightKey(departureID, arrivalID, outboundDate, returnDate string) string {
	return fmt.Sprintf("%s_%s_%s_%s", departureID, arrivalID, outboundDate, returnDate)
}

// ForexKey builds the canonical forex cache key for a currency pair ("EUR-USD")
// and a snapshot timestamp in either provider or normalized form.
func ForexKey(q, createdAt string) string {
	return fmt.Sprintf("%s_%s", q, NormalizeTimestamp(createdAt))
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return NormalizeTimestamp(t)
	case float64:
		// JSON numbers decode as float64; dates and codes are strings, so
		// this only ever renders numeric parameters like adults=2.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
