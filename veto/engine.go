// Package veto collects signed stakeholder signals and runs the per-proposal
// veto state machine: dormant, triggered, then resolved by override or
// consensus.
package veto

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/merkle"
	"commons-governance/metrics"
	"commons-governance/models"
	"commons-governance/repository"
	"commons-governance/signature"
)

// NodeSource is the read side of the node registry.
type NodeSource interface {
	GetNode(ctx context.Context, id string) (*models.Node, error)
	GetActiveNodes(ctx context.Context) ([]*models.Node, error)
}

// Store persists signals and veto states.
type Store interface {
	repository.SignalRepositoryInterface
	repository.VetoStateRepositoryInterface
}

// ParameterSource supplies base veto thresholds for a tier, replacing the
// static tier table.
type ParameterSource interface {
	BaseThresholds(ctx context.Context, tier int) (mining, economic float64, err error)
}

// PercentageMode selects the numerator used for veto percentages.
type PercentageMode string

const (
	// ModeSnapshot sums the weights frozen into signals at collection time.
	ModeSnapshot PercentageMode = "snapshot"
	// ModeLive sums the current weights of signers that are still active.
	ModeLive PercentageMode = "live"
)

func (m PercentageMode) Valid() bool { return m == ModeSnapshot || m == ModeLive }

const defaultParamTimeout = 2 * time.Second

// Engine is the VetoEngine. Every decision is derived from the store.
type Engine struct {
	nodes        NodeSource
	store        Store
	verifier     signature.Verifier
	params       ParameterSource
	paramTimeout time.Duration
	mode         PercentageMode
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Engine)

// WithParameterSource bounds each lookup by timeout. Failed lookups fall back
// to the tier table.
func WithParameterSource(src ParameterSource, timeout time.Duration) Option {
	return func(e *Engine) {
		e.params = src
		if timeout > 0 {
			e.paramTimeout = timeout
		}
	}
}

func WithPercentageMode(mode PercentageMode) Option {
	return func(e *Engine) { e.mode = mode }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires an engine. An invalid percentage mode selects ModeSnapshot.
func NewEngine(nodes NodeSource, store Store, verifier signature.Verifier, opts ...Option) *Engine {
	e := &Engine{
		nodes:        nodes,
		store:        store,
		verifier:     verifier,
		paramTimeout: defaultParamTimeout,
		mode:         ModeSnapshot,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.mode.Valid() {
		logger.Logger.Warn("Unknown percentage mode, using snapshot", zap.String("mode", string(e.mode)))
		e.mode = ModeSnapshot
	}
	return e
}

// Mode returns the percentage mode in use.
func (e *Engine) Mode() PercentageMode { return e.mode }

// SignalMessage is the text a node signs to signal on a proposal.
func SignalMessage(proposalID int64, entityName string) string {
	return fmt.Sprintf("proposal #%d veto signal from %s", proposalID, entityName)
}

type signalOptions struct {
	votingKey  string
	votingPath string
}

// SignalOption adds optional data to a collected signal.
type SignalOption func(*signalOptions)

// WithVotingKey attaches the anonymous voting key a signal is proven under.
func WithVotingKey(publicKey, path string) SignalOption {
	return func(o *signalOptions) {
		o.votingKey = publicKey
		o.votingPath = path
	}
}

// CollectSignal verifies and stores a node's signal on a proposal. Only
// active nodes may signal, and each node signals at most once per proposal.
// The node's current weight is frozen into the signal.
func (e *Engine) CollectSignal(ctx context.Context, proposalID int64, nodeID string, signalType models.SignalType, sig, rationale string, opts ...SignalOption) (string, error) {
	id, err := e.collect(ctx, proposalID, nodeID, signalType, sig, rationale, opts)
	if err != nil {
		e.metrics.SignalRejected(string(errs.KindOf(err)))
		logger.Logger.Warn("Rejected signal",
			zap.Int64("proposal_id", proposalID),
			zap.String("node_id", nodeID),
			zap.String("signal_type", string(signalType)),
			zap.Error(err))
		return "", err
	}
	e.metrics.SignalAccepted(string(signalType))
	return id, nil
}

func (e *Engine) collect(ctx context.Context, proposalID int64, nodeID string, signalType models.SignalType, sig, rationale string, opts []SignalOption) (string, error) {
	const op = "veto.CollectSignal"
	if proposalID <= 0 {
		return "", errs.New(errs.Validation, op, "proposal id must be positive, got %d", proposalID)
	}
	if !signalType.Valid() {
		return "", errs.New(errs.Validation, op, "unknown signal type %q", signalType)
	}
	var o signalOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.votingKey != "" {
		pub, err := signature.ParsePublicKey(o.votingKey)
		if err != nil {
			return "", errs.New(errs.Validation, op, "voting key: %v", err)
		}
		o.votingKey = signature.EncodePublicKey(pub)
	}

	node, err := e.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return "", err
	}
	if node.Status != models.StatusActive {
		return "", errs.StateErr(op, errs.ReasonInactive, "node %s is %s", nodeID, node.Status)
	}

	ok, err := e.verifier.Verify(SignalMessage(proposalID, node.EntityName), sig, node.PublicKey)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, op, err, "verify signature of node %s", nodeID)
	}
	if !ok {
		return "", errs.New(errs.Crypto, op, "signature of node %s does not verify", nodeID)
	}

	signal := &models.VetoSignal{
		ID:              uuid.NewString(),
		ProposalID:      proposalID,
		NodeID:          node.ID,
		NodeType:        node.Type,
		Type:            signalType,
		Weight:          node.Weight,
		Signature:       sig,
		Rationale:       rationale,
		Timestamp:       e.now().UTC(),
		Verified:        true,
		VotingPublicKey: o.votingKey,
		VotingKeyPath:   o.votingPath,
	}
	if err := e.store.InsertSignal(ctx, signal); err != nil {
		return "", err
	}

	logger.Logger.Info("Collected signal",
		zap.Int64("proposal_id", proposalID),
		zap.String("node_id", node.ID),
		zap.String("entity_name", node.EntityName),
		zap.String("signal_type", string(signalType)),
		zap.Float64("weight", node.Weight))
	return signal.ID, nil
}

// GetSignals returns a proposal's signals, newest first.
func (e *Engine) GetSignals(ctx context.Context, proposalID int64) ([]*models.VetoSignal, error) {
	signals, err := e.store.GetSignals(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(signals, func(i, j int) bool {
		if !signals[i].Timestamp.Equal(signals[j].Timestamp) {
			return signals[i].Timestamp.After(signals[j].Timestamp)
		}
		return signals[i].ID < signals[j].ID
	})
	return signals, nil
}

// BuildMerkleProofs builds the inclusion tree over the proposal's signals
// that carry a voting key.
func (e *Engine) BuildMerkleProofs(ctx context.Context, proposalID int64) (*merkle.Tree, error) {
	signals, err := e.GetSignals(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	keyed := signals[:0]
	for _, s := range signals {
		if s.VotingPublicKey != "" {
			keyed = append(keyed, s)
		}
	}
	if len(keyed) == 0 {
		return nil, errs.New(errs.Validation, "veto.BuildMerkleProofs", "proposal #%d has no signals with voting keys", proposalID)
	}
	return merkle.Build(keyed)
}
