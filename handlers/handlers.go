package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"commons-governance/aggregator"
	"commons-governance/consolidation"
	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/merkle"
	"commons-governance/models"
	"commons-governance/pricing"
	"commons-governance/registry"
	"commons-governance/veto"
)

// Handler contains the HTTP handlers for the governance API endpoints
type Handler struct {
	Registry      *registry.Registry
	Consolidation *consolidation.Monitor
	Engine        *veto.Engine
	Aggregator    *aggregator.Aggregator
	Prices        *pricing.MovingAverage
}

// NewHandler creates and returns a new Handler instance
func NewHandler(reg *registry.Registry, mon *consolidation.Monitor, engine *veto.Engine, agg *aggregator.Aggregator, prices *pricing.MovingAverage) *Handler {
	return &Handler{Registry: reg, Consolidation: mon, Engine: engine, Aggregator: agg, Prices: prices}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Duplicate, errs.State:
		return http.StatusConflict
	case errs.Qualification:
		return http.StatusUnprocessableEntity
	case errs.Crypto:
		return http.StatusUnauthorized
	case errs.Storage:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError logs client errors at warn and server errors at error level.
func writeError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		logger.Logger.Warn(msg, zap.Error(err))
	} else {
		logger.Logger.Error(msg, zap.Error(err))
	}
	body := map[string]string{"error": err.Error()}
	if kind := errs.KindOf(err); kind != "" {
		body["kind"] = string(kind)
	}
	if reason := errs.ReasonOf(err); reason != errs.ReasonNone {
		body["reason"] = string(reason)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string, err error) {
	logger.Logger.Warn(msg, zap.Error(err))
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": "Invalid request payload",
	})
}

func proposalID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.New(errs.Validation, "handlers", "proposal id must be a positive integer, got %q", mux.Vars(r)["id"])
	}
	return id, nil
}

func tierParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("tier")
	if raw == "" {
		return 0, errs.New(errs.Validation, "handlers", "tier query parameter is required")
	}
	tier, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.New(errs.Validation, "handlers", "tier must be an integer, got %q", raw)
	}
	return tier, nil
}

type registerRequest struct {
	NodeType   models.NodeType              `json:"node_type"`
	EntityName string                       `json:"entity_name"`
	PublicKey  string                       `json:"public_key"`
	Evidence   models.QualificationEvidence `json:"qualification"`
	CreatedBy  string                       `json:"created_by"`
}

// RegisterNode handles POST requests to register an economic node
func (h *Handler) RegisterNode(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Failed to decode node registration", err)
		return
	}

	id, err := h.Registry.Register(r.Context(), req.NodeType, req.EntityName, req.PublicKey, req.Evidence, req.CreatedBy)
	if err != nil {
		writeError(w, "Failed to register node", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Node registered successfully",
		"node_id": id,
	})
}

// ListNodes handles GET requests for every registered node
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.Registry.ListNodes(r.Context())
	if err != nil {
		writeError(w, "Failed to list nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// GetActiveNodes handles GET requests for the active node population
func (h *Handler) GetActiveNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.Registry.GetActiveNodes(r.Context())
	if err != nil {
		writeError(w, "Failed to get active nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.Registry.GetNode(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "Failed to get node", err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// SetNodeStatus handles PUT requests that activate, suspend or remove a node
func (h *Handler) SetNodeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.NodeStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Failed to decode status update", err)
		return
	}

	node, err := h.Registry.SetStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		writeError(w, "Failed to set node status", err)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

// UpdateEvidence handles PUT requests carrying fresh qualification evidence
func (h *Handler) UpdateEvidence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Evidence models.QualificationEvidence `json:"qualification"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Failed to decode evidence update", err)
		return
	}

	node, err := h.Registry.UpdateEvidence(r.Context(), mux.Vars(r)["id"], req.Evidence)
	if err != nil {
		writeError(w, "Failed to update evidence", err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// RecalculateWeights handles POST requests for a batch weight refresh
func (h *Handler) RecalculateWeights(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Registry.RecalculateAllWeights(r.Context())
	if err != nil {
		writeError(w, "Failed to recalculate weights", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Weights recalculated",
		"updated": updated,
	})
}

// GetConsolidation handles GET requests for the concentration report
func (h *Handler) GetConsolidation(w http.ResponseWriter, r *http.Request) {
	report, err := h.Consolidation.Report(r.Context())
	if err != nil {
		writeError(w, "Failed to measure consolidation", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type signalRequest struct {
	NodeID          string            `json:"node_id"`
	SignalType      models.SignalType `json:"signal_type"`
	Signature       string            `json:"signature"`
	Rationale       string            `json:"rationale"`
	VotingPublicKey string            `json:"voting_public_key,omitempty"`
	VotingKeyPath   string            `json:"voting_key_path,omitempty"`
}

// CollectSignal handles POST requests carrying a signed veto signal
func (h *Handler) CollectSignal(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Failed to decode signal", err)
		return
	}

	var opts []veto.SignalOption
	if req.VotingPublicKey != "" {
		opts = append(opts, veto.WithVotingKey(req.VotingPublicKey, req.VotingKeyPath))
	}
	id, err := h.Engine.CollectSignal(r.Context(), pid, req.NodeID, req.SignalType, req.Signature, req.Rationale, opts...)
	if err != nil {
		writeError(w, "Failed to collect signal", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Signal recorded",
		"signal_id": id,
	})
}

func (h *Handler) GetSignals(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	signals, err := h.Engine.GetSignals(r.Context(), pid)
	if err != nil {
		writeError(w, "Failed to get signals", err)
		return
	}
	writeJSON(w, http.StatusOK, signals)
}

// EvaluateVeto handles GET requests that evaluate a proposal's veto threshold
func (h *Handler) EvaluateVeto(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	tier, err := tierParam(r)
	if err != nil {
		writeError(w, "Invalid tier", err)
		return
	}
	eval, err := h.Engine.EvaluateThreshold(r.Context(), pid, tier)
	if err != nil {
		writeError(w, "Failed to evaluate veto threshold", err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (h *Handler) GetVetoState(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	state, err := h.Engine.GetVetoState(r.Context(), pid)
	if err != nil {
		writeError(w, "Failed to get veto state", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// OverrideVeto handles POST requests by maintainers to override a veto after review
func (h *Handler) OverrideVeto(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	var req struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Failed to decode override", err)
		return
	}

	state, err := h.Engine.Override(r.Context(), pid, req.Actor)
	if err != nil {
		writeError(w, "Failed to override veto", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// CheckConsensus handles POST requests that resolve a veto once opposition fades
func (h *Handler) CheckConsensus(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	tier, err := tierParam(r)
	if err != nil {
		writeError(w, "Invalid tier", err)
		return
	}
	resolved, err := h.Engine.CheckConsensus(r.Context(), pid, tier)
	if err != nil {
		writeError(w, "Failed to check consensus", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposal_id": pid,
		"resolved":    resolved,
	})
}

func (h *Handler) PendingReviews(w http.ResponseWriter, r *http.Request) {
	states, err := h.Engine.PendingReviews(r.Context())
	if err != nil {
		writeError(w, "Failed to list pending reviews", err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

// RecordVote handles POST requests for the payment-backed vote channel
func (h *Handler) RecordVote(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	var vote models.WeightedVote
	if err := json.NewDecoder(r.Body).Decode(&vote); err != nil {
		badRequest(w, "Failed to decode vote", err)
		return
	}
	vote.ProposalID = pid

	id, err := h.Aggregator.RecordVote(r.Context(), &vote)
	if err != nil {
		writeError(w, "Failed to record vote", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Vote recorded",
		"vote_id": id,
	})
}

// AggregateVotes handles GET requests for the combined proposal decision
func (h *Handler) AggregateVotes(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	tier, err := tierParam(r)
	if err != nil {
		writeError(w, "Invalid tier", err)
		return
	}
	res, err := h.Aggregator.Aggregate(r.Context(), pid, tier)
	if err != nil {
		writeError(w, "Failed to aggregate votes", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetMerkleProofs handles GET requests for inclusion proofs of a proposal's signals
func (h *Handler) GetMerkleProofs(w http.ResponseWriter, r *http.Request) {
	pid, err := proposalID(r)
	if err != nil {
		writeError(w, "Invalid proposal id", err)
		return
	}
	tree, err := h.Engine.BuildMerkleProofs(r.Context(), pid)
	if err != nil {
		writeError(w, "Failed to build merkle proofs", err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// VerifyMerkleProof handles POST requests that check a single inclusion proof
func (h *Handler) VerifyMerkleProof(w http.ResponseWriter, r *http.Request) {
	var proof merkle.Proof
	if err := json.NewDecoder(r.Body).Decode(&proof); err != nil {
		badRequest(w, "Failed to decode merkle proof", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": merkle.Verify(&proof)})
}

// RecordPrice handles POST requests feeding the BTC/USD moving average
func (h *Handler) RecordPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		USD float64   `json:"usd"`
		At  time.Time `json:"at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Failed to decode price", err)
		return
	}
	if req.At.IsZero() {
		req.At = time.Now()
	}
	if err := h.Prices.AddPrice(req.USD, req.At); err != nil {
		writeError(w, "Failed to record price", err)
		return
	}
	h.GetPrice(w, r)
}

func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	avg, err := h.Prices.MovingAverage()
	if err != nil {
		writeError(w, "Failed to read price", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"moving_average_usd": avg})
}
