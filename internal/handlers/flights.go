package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/chasquifx/chasquifx-cache/internal/cache"
	"github.com/chasquifx/chasquifx-cache/internal/docpath"
	"github.com/chasquifx/chasquifx-cache/internal/keys"
	"github.com/sirupsen/logrus"
)

const maxPayloadBytes = 4 << 20

// HandleFlightLookup serves a cached flight search by its request
// parameters. A store failure degrades to a miss so the caller falls through
// to the provider.
func (a *API) HandleFlightLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	departureID := q.Get("departure_id")
	arrivalID := q.Get("arrival_id")
	outboundDate := q.Get("outbound_date")
	returnDate := q.Get("return_date")

	if !airportCodeRe.MatchString(departureID) || !airportCodeRe.MatchString(arrivalID) {
		writeError(w, http.StatusBadRequest, "departure_id and arrival_id must be IATA codes")
		return
	}
	if !isoDateRe.MatchString(outboundDate) || !isoDateRe.MatchString(returnDate) {
		writeError(w, http.StatusBadRequest, "outbound_date and return_date must be YYYY-MM-DD")
		return
	}

	cacheKey := keys.FlightKey(departureID, arrivalID, outboundDate, returnDate)
	rec, _ := a.store.Get(r.Context(), cache.Flights, cacheKey)
	if rec == nil {
		w.Header().Set("X-Cache", "MISS")
		writeJSON(w, http.StatusNotFound, map[string]string{"cache_key": cacheKey, "status": "miss"})
		return
	}

	a.log.WithFields(logrus.Fields{
		"cache_key": cacheKey,
		"source":    "cache",
	}).Info("Serving flight search from cache")
	w.Header().Set("X-Cache", "HIT")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Data)
}

// HandleFlightStore caches a raw flight provider response posted back by the
// edge function. The key is derived from the payload itself; if structured
// derivation fails the concatenation fallback still produces a usable key.
func (a *API) HandleFlightStore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	cacheKey := keys.DeriveOrFallback(a.log, doc, keys.FlightKeyPaths, keys.FlightKeyTemplate)
	params := leafParams(doc, keys.FlightKeyPaths)
	ttl := ttlOverride(r.URL.Query().Get("ttl_hours"), a.cfg.FlightCacheTTL)

	if err := a.store.Put(r.Context(), cache.Flights, cacheKey, params, nil, body, ttl); err != nil {
		writeError(w, http.StatusServiceUnavailable, "cache write failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"cache_key": cacheKey,
		"ttl_hours": ttl.Hours(),
	})
}

// leafParams flattens the key fields into the search_parameters document so
// the record stays queryable by parameter even when the key was built by the
// fallback path.
func leafParams(doc map[string]any, paths []string) map[string]any {
	params := make(map[string]any, len(paths))
	for path, v := range docpath.Extract(doc, paths) {
		params[docpath.Leaf(path)] = v
	}
	return params
}
