package routers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"commons-governance/handlers"
)

// RegisterRoutes sets up all the HTTP routes for the governance API
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Registers a new economic node; it starts pending until activated
	r.HandleFunc("/nodes", h.RegisterNode).Methods("POST")
	r.HandleFunc("/nodes", h.ListNodes).Methods("GET")

	// The live population every threshold is measured against
	r.HandleFunc("/nodes/active", h.GetActiveNodes).Methods("GET")

	// Refreshes every stored weight from its evidence
	r.HandleFunc("/nodes/recalculate", h.RecalculateWeights).Methods("POST")

	r.HandleFunc("/nodes/{id}", h.GetNode).Methods("GET")
	r.HandleFunc("/nodes/{id}/status", h.SetNodeStatus).Methods("PUT")
	r.HandleFunc("/nodes/{id}/evidence", h.UpdateEvidence).Methods("PUT")

	// Mining and economic concentration of the active population
	r.HandleFunc("/consolidation", h.GetConsolidation).Methods("GET")

	r.HandleFunc("/proposals/{id:[0-9]+}/signals", h.CollectSignal).Methods("POST")
	r.HandleFunc("/proposals/{id:[0-9]+}/signals", h.GetSignals).Methods("GET")

	// Evaluates the veto threshold; may trigger the review period
	r.HandleFunc("/proposals/{id:[0-9]+}/veto", h.EvaluateVeto).Methods("GET")
	r.HandleFunc("/proposals/{id:[0-9]+}/veto/state", h.GetVetoState).Methods("GET")
	r.HandleFunc("/proposals/{id:[0-9]+}/override", h.OverrideVeto).Methods("POST")
	r.HandleFunc("/proposals/{id:[0-9]+}/consensus", h.CheckConsensus).Methods("POST")

	// Payment-backed weighted vote channel and the combined decision
	r.HandleFunc("/proposals/{id:[0-9]+}/votes", h.RecordVote).Methods("POST")
	r.HandleFunc("/proposals/{id:[0-9]+}/aggregate", h.AggregateVotes).Methods("GET")

	r.HandleFunc("/proposals/{id:[0-9]+}/merkle", h.GetMerkleProofs).Methods("GET")
	r.HandleFunc("/merkle/verify", h.VerifyMerkleProof).Methods("POST")

	r.HandleFunc("/reviews/pending", h.PendingReviews).Methods("GET")

	r.HandleFunc("/prices", h.RecordPrice).Methods("POST")
	r.HandleFunc("/prices", h.GetPrice).Methods("GET")
}

// NewServerHandler builds the full router with /metrics and CORS applied.
func NewServerHandler(h *handlers.Handler, gatherer prometheus.Gatherer, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	RegisterRoutes(r, h)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
	}).Handler(r)
}
