package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"commons-governance/aggregator"
	"commons-governance/consolidation"
	"commons-governance/db"
	"commons-governance/handlers"
	"commons-governance/logger"
	"commons-governance/merkle"
	"commons-governance/metrics"
	"commons-governance/models"
	"commons-governance/pricing"
	"commons-governance/registry"
	"commons-governance/repository"
	"commons-governance/routers"
	"commons-governance/signature"
	"commons-governance/veto"
)

type testNode struct {
	id   string
	name string
	key  *btcec.PrivateKey
}

func testServer(t *testing.T) http.Handler {
	t.Helper()
	logger.Logger = zap.NewNop()

	ldb, err := db.NewMemoryLevelDB()
	if err != nil {
		t.Fatalf("open memory leveldb: %v", err)
	}
	t.Cleanup(func() { ldb.Close() })

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	repo := repository.NewLevelDBRepository(ldb)
	prices := pricing.NewMovingAverage(0, 0)
	reg := registry.NewRegistry(repo, registry.DefaultThresholds(), prices, registry.WithMetrics(m))
	engine := veto.NewEngine(reg, repo, signature.NewSecp256k1Verifier(), veto.WithMetrics(m))
	h := handlers.NewHandler(reg, consolidation.NewMonitor(reg), engine, aggregator.New(repo, engine), prices)
	return routers.NewServerHandler(h, promReg, []string{"*"})
}

func do(t *testing.T, srv http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(res.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
}

func register(t *testing.T, srv http.Handler, nodeType models.NodeType, name string, ev models.QualificationEvidence) testNode {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	res := do(t, srv, http.MethodPost, "/nodes", map[string]interface{}{
		"node_type":     nodeType,
		"entity_name":   name,
		"public_key":    signature.PublicKeyHex(key),
		"qualification": ev,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d, body: %s", res.Code, res.Body.String())
	}
	var out struct {
		NodeID string `json:"node_id"`
	}
	decode(t, res, &out)
	return testNode{id: out.NodeID, name: name, key: key}
}

func activate(t *testing.T, srv http.Handler, n testNode) {
	t.Helper()
	res := do(t, srv, http.MethodPut, "/nodes/"+n.id+"/status", map[string]string{"status": "active"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200 on activate, got %d, body: %s", res.Code, res.Body.String())
	}
}

func custodian(btc float64) models.QualificationEvidence {
	return models.QualificationEvidence{Holdings: &models.HoldingsProof{TotalBTC: btc}}
}

func pool(percent float64) models.QualificationEvidence {
	return models.QualificationEvidence{Hashpower: &models.HashpowerProof{Percentage: percent, PeriodDays: 30}}
}

func TestRegisterNode_Success(t *testing.T) {
	srv := testServer(t)
	n := register(t, srv, models.Custodian, "Vault Co", custodian(15_000))

	res := do(t, srv, http.MethodGet, "/nodes/"+n.id, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	var node models.Node
	decode(t, res, &node)
	if node.Status != models.StatusPending {
		t.Fatalf("expected pending status, got %s", node.Status)
	}
	if node.Weight != 1 {
		t.Fatalf("expected weight 1, got %v", node.Weight)
	}
}

func TestRegisterNode_Duplicate(t *testing.T) {
	srv := testServer(t)
	n := register(t, srv, models.Custodian, "Vault Co", custodian(15_000))

	res := do(t, srv, http.MethodPost, "/nodes", map[string]interface{}{
		"node_type":     models.MajorHolder,
		"entity_name":   "Other",
		"public_key":    signature.PublicKeyHex(n.key),
		"qualification": custodian(6_000),
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d, body: %s", res.Code, res.Body.String())
	}
}

func TestRegisterNode_ErrorMapping(t *testing.T) {
	srv := testServer(t)

	res := do(t, srv, http.MethodPost, "/nodes", "{not json")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 on bad payload, got %d", res.Code)
	}

	key, _ := btcec.NewPrivateKey()
	res = do(t, srv, http.MethodPost, "/nodes", map[string]interface{}{
		"node_type":     models.Custodian,
		"entity_name":   "Small Vault",
		"public_key":    signature.PublicKeyHex(key),
		"qualification": custodian(10),
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 on failed qualification, got %d", res.Code)
	}
	var body map[string]string
	decode(t, res, &body)
	if body["kind"] != "qualification" || !strings.Contains(body["error"], "holdings_btc") {
		t.Fatalf("unexpected error body: %v", body)
	}

	res = do(t, srv, http.MethodGet, "/nodes/missing", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", res.Code)
	}
}

func TestVetoLifecycle(t *testing.T) {
	srv := testServer(t)
	miner := register(t, srv, models.MiningPool, "Pool A", pool(30))
	c1 := register(t, srv, models.Custodian, "Vault A", custodian(12_000))
	c2 := register(t, srv, models.Custodian, "Vault B", custodian(12_000))
	for _, n := range []testNode{miner, c1, c2} {
		activate(t, srv, n)
	}

	const pid = 42
	for _, n := range []testNode{miner, c1} {
		res := do(t, srv, http.MethodPost, fmt.Sprintf("/proposals/%d/signals", pid), map[string]string{
			"node_id":     n.id,
			"signal_type": "veto",
			"signature":   signature.Sign(n.key, veto.SignalMessage(pid, n.name)),
			"rationale":   "unsafe",
		})
		if res.Code != http.StatusCreated {
			t.Fatalf("expected status 201 for signal, got %d, body: %s", res.Code, res.Body.String())
		}
	}

	// wrong signer
	res := do(t, srv, http.MethodPost, fmt.Sprintf("/proposals/%d/signals", pid), map[string]string{
		"node_id":     c2.id,
		"signal_type": "veto",
		"signature":   signature.Sign(c1.key, veto.SignalMessage(pid, c2.name)),
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for bad signature, got %d", res.Code)
	}

	res = do(t, srv, http.MethodGet, fmt.Sprintf("/proposals/%d/veto?tier=3", pid), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", res.Code, res.Body.String())
	}
	var eval models.VetoEvaluation
	decode(t, res, &eval)
	if !eval.ThresholdMet || !eval.VetoActive || eval.Phase != models.PhaseTriggered {
		t.Fatalf("expected triggered veto, got %+v", eval)
	}
	if eval.EconomicVetoPercent != 50 {
		t.Fatalf("expected economic veto 50%%, got %v", eval.EconomicVetoPercent)
	}

	res = do(t, srv, http.MethodPost, fmt.Sprintf("/proposals/%d/override", pid), map[string]string{"actor": "maintainer"})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected status 409 during review, got %d", res.Code)
	}
	var body map[string]string
	decode(t, res, &body)
	if body["reason"] != "too_early" {
		t.Fatalf("expected too_early reason, got %v", body)
	}

	res = do(t, srv, http.MethodGet, "/reviews/pending", nil)
	var pending []models.VetoState
	decode(t, res, &pending)
	if len(pending) != 1 || pending[0].ProposalID != pid {
		t.Fatalf("expected one pending review, got %+v", pending)
	}

	res = do(t, srv, http.MethodGet, fmt.Sprintf("/proposals/%d/veto", pid), nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without tier, got %d", res.Code)
	}
}

func TestAggregateAndMerkle(t *testing.T) {
	srv := testServer(t)
	n := register(t, srv, models.Custodian, "Vault A", custodian(12_000))
	activate(t, srv, n)

	voter, _ := btcec.NewPrivateKey()
	votingKey := signature.PublicKeyHex(voter)
	res := do(t, srv, http.MethodPost, "/proposals/7/signals", map[string]string{
		"node_id":           n.id,
		"signal_type":       "support",
		"signature":         signature.Sign(n.key, veto.SignalMessage(7, n.name)),
		"voting_public_key": votingKey,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d, body: %s", res.Code, res.Body.String())
	}

	res = do(t, srv, http.MethodPost, "/proposals/7/votes", map[string]interface{}{
		"voter_id": "alice", "amount_btc": 400, "message": "support",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected status 201 for vote, got %d, body: %s", res.Code, res.Body.String())
	}

	res = do(t, srv, http.MethodGet, "/proposals/7/aggregate?tier=1", nil)
	var agg models.ProposalVoteResult
	decode(t, res, &agg)
	if agg.WeightedChannel.Support != 20 || agg.ThresholdMet {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}

	res = do(t, srv, http.MethodGet, "/proposals/7/merkle", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", res.Code, res.Body.String())
	}
	var tree merkle.Tree
	decode(t, res, &tree)
	proof, ok := tree.Proofs[votingKey]
	if !ok {
		t.Fatalf("no proof for voting key")
	}

	res = do(t, srv, http.MethodPost, "/merkle/verify", proof)
	var verdict map[string]bool
	decode(t, res, &verdict)
	if !verdict["valid"] {
		t.Fatalf("expected proof to verify")
	}

	proof.LeafData += "x"
	res = do(t, srv, http.MethodPost, "/merkle/verify", proof)
	decode(t, res, &verdict)
	if verdict["valid"] {
		t.Fatalf("expected tampered proof to fail")
	}
}

func TestMetricsAndPrices(t *testing.T) {
	srv := testServer(t)
	register(t, srv, models.Custodian, "Vault A", custodian(12_000))

	res := do(t, srv, http.MethodGet, "/metrics", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200 for metrics, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `governance_registrations_total{node_type="custodian"} 1`) {
		t.Fatalf("registration counter missing from metrics output")
	}

	res = do(t, srv, http.MethodPost, "/prices", map[string]float64{"usd": 60000})
	var price map[string]float64
	decode(t, res, &price)
	if price["moving_average_usd"] != 60000 {
		t.Fatalf("expected moving average 60000, got %v", price)
	}

	res = do(t, srv, http.MethodPost, "/prices", map[string]float64{"usd": -1})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for negative price, got %d", res.Code)
	}
}
