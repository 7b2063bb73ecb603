package handlers

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *mux.Router, api *API) {
	r.HandleFunc("/healthz", HandleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/v1/flights", api.HandleFlightLookup).Methods("GET")
	r.HandleFunc("/api/v1/flights", api.HandleFlightStore).Methods("POST")
	r.HandleFunc("/api/v1/forex", api.HandleForexLookup).Methods("GET")
	r.HandleFunc("/api/v1/forex", api.HandleForexStore).Methods("POST")

	r.HandleFunc("/admin/reconcile", api.HandleReconcile).Methods("POST")
}
