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

// HandleForexLookup serves the freshest cached rate snapshot for a currency
// pair. Forex keys embed the snapshot timestamp, so the lookup goes by
// search parameter rather than by derived key.
func (a *API) HandleForexLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		base, quote := r.URL.Query().Get("base"), r.URL.Query().Get("quote")
		if base != "" && quote != "" {
			q = base + "-" + quote
		}
	}
	if !currencyPairRe.MatchString(q) {
		writeError(w, http.StatusBadRequest, "q must be a currency pair like EUR-USD")
		return
	}

	rec, _ := a.store.GetLatestByParams(r.Context(), cache.Forex, map[string]string{"q": q})
	if rec == nil {
		w.Header().Set("X-Cache", "MISS")
		writeJSON(w, http.StatusNotFound, map[string]string{"q": q, "status": "miss"})
		return
	}

	a.log.WithFields(logrus.Fields{
		"q":         q,
		"cache_key": rec.CacheKey,
		"source":    "cache",
	}).Info("Serving forex rates from cache")
	w.Header().Set("X-Cache", "HIT")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Data)
}

// HandleForexStore caches a raw forex provider response. The snapshot
// timestamp from search_metadata.created_at becomes part of the key, making
// each stored snapshot a distinct point-in-time record.
func (a *API) HandleForexStore(w http.ResponseWriter, r *http.Request) {
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

	cacheKey := keys.DeriveOrFallback(a.log, doc, keys.ForexKeyPaths, keys.ForexKeyTemplate)

	params := map[string]any{}
	if v, ok := docpath.Lookup(doc, "search_parameters.q"); ok {
		params["q"] = v
	}
	metadata := map[string]any{}
	if v, ok := docpath.Lookup(doc, "search_metadata.created_at"); ok {
		metadata["created_at"] = v
	}

	ttl := ttlOverride(r.URL.Query().Get("ttl_hours"), a.cfg.ForexCacheTTL)
	if err := a.store.Put(r.Context(), cache.Forex, cacheKey, params, metadata, body, ttl); err != nil {
		writeError(w, http.StatusServiceUnavailable, "cache write failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"cache_key": cacheKey,
		"ttl_hours": ttl.Hours(),
	})
}
