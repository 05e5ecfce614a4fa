// Package registry qualifies economic nodes and derives their weight from
// qualification evidence.
package registry

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/metrics"
	"commons-governance/models"
	"commons-governance/pricing"
	"commons-governance/repository"
	"commons-governance/signature"
)

const recalcConcurrency = 4

// Registry is the NodeRegistry. It holds no node state of its own.
type Registry struct {
	repo    repository.NodeRepositoryInterface
	weights WeightCalculator
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records registrations and recalculations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry over repo. A nil price source uses the default BTC price.
func NewRegistry(repo repository.NodeRepositoryInterface, thresholds Thresholds, price pricing.Source, opts ...Option) *Registry {
	if price == nil {
		price = pricing.Static(pricing.DefaultPriceUSD)
	}
	r := &Registry{
		repo:    repo,
		weights: WeightCalculator{Thresholds: thresholds, Price: price},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// VerifyQualification reports whether evidence qualifies nodeType.
func (r *Registry) VerifyQualification(nodeType models.NodeType, ev models.QualificationEvidence) bool {
	return r.weights.Thresholds.VerifyQualification(nodeType, ev)
}

// CalculateWeight computes the weight nodeType would get for evidence.
func (r *Registry) CalculateWeight(nodeType models.NodeType, ev models.QualificationEvidence) (float64, error) {
	return r.weights.CalculateWeight(nodeType, ev)
}

// Register qualifies and stores a new node with status pending. The public
// key is stored in compressed form so both encodings of a key collide.
func (r *Registry) Register(ctx context.Context, nodeType models.NodeType, entityName, publicKey string, ev models.QualificationEvidence, createdBy string) (string, error) {
	id, err := r.register(ctx, nodeType, entityName, publicKey, ev, createdBy)
	if err != nil {
		r.metrics.RegistrationFailed(string(errs.KindOf(err)))
		logger.Logger.Warn("Rejected node registration",
			zap.String("node_type", string(nodeType)),
			zap.String("entity_name", entityName),
			zap.Error(err))
		return "", err
	}
	r.metrics.Registered(string(nodeType))
	return id, nil
}

func (r *Registry) register(ctx context.Context, nodeType models.NodeType, entityName, publicKey string, ev models.QualificationEvidence, createdBy string) (string, error) {
	const op = "registry.Register"
	if !nodeType.Valid() {
		return "", errs.New(errs.Validation, op, "unknown node type %q", nodeType)
	}
	entityName = strings.TrimSpace(entityName)
	if entityName == "" {
		return "", errs.New(errs.Validation, op, "entity name is required")
	}
	pub, err := signature.ParsePublicKey(publicKey)
	if err != nil {
		return "", errs.New(errs.Validation, op, "public key: %v", err)
	}
	if err := r.weights.Thresholds.CheckQualification(nodeType, ev); err != nil {
		return "", err
	}
	weight, err := r.weights.CalculateWeight(nodeType, ev)
	if err != nil {
		return "", err
	}

	now := r.now().UTC()
	node := &models.Node{
		ID:           uuid.NewString(),
		Type:         nodeType,
		EntityName:   entityName,
		PublicKey:    signature.EncodePublicKey(pub),
		Evidence:     ev,
		Weight:       weight,
		Status:       models.StatusPending,
		CreatedBy:    createdBy,
		RegisteredAt: now,
		UpdatedAt:    now,
		WeighedAt:    now,
	}
	if err := r.repo.CreateNode(ctx, node); err != nil {
		return "", err
	}

	logger.Logger.Info("Registered economic node",
		zap.String("node_id", node.ID),
		zap.String("node_type", string(nodeType)),
		zap.String("entity_name", entityName),
		zap.Float64("weight", weight))
	return node.ID, nil
}

// GetNode returns the node with the given id.
func (r *Registry) GetNode(ctx context.Context, id string) (*models.Node, error) {
	return r.repo.GetNode(ctx, id)
}

// ListNodes returns every node ordered by registration time.
func (r *Registry) ListNodes(ctx context.Context) ([]*models.Node, error) {
	nodes, err := r.repo.GetAllNodes(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].RegisteredAt.Before(nodes[j].RegisteredAt)
	})
	return nodes, nil
}

// GetActiveNodes returns the nodes whose status is active.
func (r *Registry) GetActiveNodes(ctx context.Context) ([]*models.Node, error) {
	nodes, err := r.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	active := nodes[:0]
	for _, n := range nodes {
		if n.Status == models.StatusActive {
			active = append(active, n)
		}
	}
	return active, nil
}

// SetStatus moves a node to status. Removed nodes stay removed.
func (r *Registry) SetStatus(ctx context.Context, id string, status models.NodeStatus) (*models.Node, error) {
	const op = "registry.SetStatus"
	if !status.Valid() {
		return nil, errs.New(errs.Validation, op, "unknown status %q", status)
	}
	var from models.NodeStatus
	node, err := r.repo.UpdateNode(ctx, id, func(n *models.Node) error {
		if n.Status == models.StatusRemoved && status != models.StatusRemoved {
			return errs.StateErr(op, errs.ReasonInactive, "node %s has been removed", id)
		}
		from = n.Status
		n.Status = status
		n.UpdatedAt = r.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Logger.Info("Node status changed",
		zap.String("node_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(status)))
	return node, nil
}

// UpdateEvidence replaces a node's evidence after re-qualifying it, and
// recomputes its weight.
func (r *Registry) UpdateEvidence(ctx context.Context, id string, ev models.QualificationEvidence) (*models.Node, error) {
	current, err := r.repo.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.weights.Thresholds.CheckQualification(current.Type, ev); err != nil {
		return nil, err
	}
	weight, err := r.weights.CalculateWeight(current.Type, ev)
	if err != nil {
		return nil, err
	}
	return r.repo.UpdateNode(ctx, id, func(n *models.Node) error {
		now := r.now().UTC()
		n.Evidence = ev
		n.Weight = weight
		n.UpdatedAt = now
		n.WeighedAt = now
		return nil
	})
}

// RecalculateAllWeights recomputes every node's weight from its stored
// evidence. Running it twice without evidence changes yields the same weights.
func (r *Registry) RecalculateAllWeights(ctx context.Context) (int, error) {
	nodes, err := r.repo.GetAllNodes(ctx)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recalcConcurrency)
	for _, n := range nodes {
		n := n
		if n.Status == models.StatusRemoved {
			continue
		}
		g.Go(func() error {
			weight, err := r.weights.CalculateWeight(n.Type, n.Evidence)
			if err != nil {
				logger.Logger.Warn("Skipping weight recalculation",
					zap.String("node_id", n.ID), zap.Error(err))
				return nil
			}
			_, err = r.repo.UpdateNode(gctx, n.ID, func(stored *models.Node) error {
				stored.Weight = weight
				stored.WeighedAt = r.now().UTC()
				return nil
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	r.metrics.WeightsRecalculated()
	logger.Logger.Info("Recalculated node weights", zap.Int("nodes", len(nodes)))
	return len(nodes), nil
}
