package veto

import (
	"context"
	"math"
	"strconv"

	"go.uber.org/zap"

	"commons-governance/consolidation"
	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/models"
)

// tolerance absorbs rounding in weight sums when comparing to thresholds.
const tolerance = 1e-9

func validTier(op string, tier int) (models.TierPolicy, error) {
	policy, ok := models.PolicyForTier(tier)
	if !ok {
		return models.TierPolicy{}, errs.New(errs.Validation, op, "tier must be between %d and %d, got %d", models.MinTier, models.MaxTier, tier)
	}
	return policy, nil
}

func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Min(part/total*100, 100)
}

// vetoPercentages returns the mining and economic veto percentages. The
// denominators are always the live active populations.
func (e *Engine) vetoPercentages(active []*models.Node, signals []*models.VetoSignal) (float64, float64) {
	var miningTotal, economicTotal float64
	byID := make(map[string]*models.Node, len(active))
	for _, n := range active {
		byID[n.ID] = n
		if n.Type.IsMining() {
			miningTotal += n.Weight
		} else {
			economicTotal += n.Weight
		}
	}

	var miningVeto, economicVeto float64
	for _, s := range signals {
		if s.Type != models.SignalVeto || !s.Verified {
			continue
		}
		weight, nodeType := s.Weight, s.NodeType
		if e.mode == ModeLive {
			n, ok := byID[s.NodeID]
			if !ok {
				continue
			}
			weight, nodeType = n.Weight, n.Type
		}
		if nodeType.IsMining() {
			miningVeto += weight
		} else {
			economicVeto += weight
		}
	}
	return percent(miningVeto, miningTotal), percent(economicVeto, economicTotal)
}

// baseThresholds asks the parameter source first and falls back to the tier
// table when it fails or times out.
func (e *Engine) baseThresholds(ctx context.Context, policy models.TierPolicy) (float64, float64) {
	if e.params == nil {
		return policy.MiningThreshold, policy.EconomicThreshold
	}
	pctx, cancel := context.WithTimeout(ctx, e.paramTimeout)
	defer cancel()
	mining, economic, err := e.params.BaseThresholds(pctx, policy.Tier)
	if err != nil || mining <= 0 || economic <= 0 {
		logger.Logger.Warn("Parameter source unavailable, using tier defaults",
			zap.Int("tier", policy.Tier), zap.Error(err))
		return policy.MiningThreshold, policy.EconomicThreshold
	}
	return mining, economic
}

func phaseOf(state *models.VetoState) models.VetoPhase {
	switch {
	case state == nil:
		return models.PhaseDormant
	case state.Resolved():
		return models.PhaseResolved
	}
	return models.PhaseTriggered
}

func (e *Engine) existingState(ctx context.Context, proposalID int64) (*models.VetoState, error) {
	state, err := e.store.GetVetoState(ctx, proposalID)
	if errs.IsKind(err, errs.NotFound) {
		return nil, nil
	}
	return state, err
}

// EvaluateThreshold computes the veto percentages and thresholds of a
// proposal and advances its state. A dormant proposal whose thresholds are
// both met is triggered and its review period starts. Tiers below 3 report
// percentages but never trigger.
func (e *Engine) EvaluateThreshold(ctx context.Context, proposalID int64, tier int) (*models.VetoEvaluation, error) {
	const op = "veto.EvaluateThreshold"
	if proposalID <= 0 {
		return nil, errs.New(errs.Validation, op, "proposal id must be positive, got %d", proposalID)
	}
	policy, err := validTier(op, tier)
	if err != nil {
		return nil, err
	}

	active, err := e.nodes.GetActiveNodes(ctx)
	if err != nil {
		return nil, err
	}
	signals, err := e.store.GetSignals(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	state, err := e.existingState(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	e.metrics.Evaluated()

	miningPct, economicPct := e.vetoPercentages(active, signals)
	eval := &models.VetoEvaluation{
		ProposalID:          proposalID,
		Tier:                tier,
		MiningVetoPercent:   miningPct,
		EconomicVetoPercent: economicPct,
		VetoEligible:        policy.VetoEligible,
		State:               state,
		Phase:               phaseOf(state),
	}
	if !policy.VetoEligible {
		if state != nil {
			eval.VetoActive = state.VetoActive
		}
		return eval, nil
	}

	baseMining, baseEconomic := e.baseThresholds(ctx, policy)
	eval.MiningThreshold, eval.EconomicThreshold = consolidation.Measure(active).Scale(baseMining, baseEconomic)
	eval.MiningShortfall = math.Max(0, eval.MiningThreshold-miningPct)
	eval.EconomicShortfall = math.Max(0, eval.EconomicThreshold-economicPct)
	eval.ThresholdMet = miningPct+tolerance >= eval.MiningThreshold && economicPct+tolerance >= eval.EconomicThreshold
	if eval.ThresholdMet {
		eval.MiningShortfall, eval.EconomicShortfall = 0, 0
	}

	switch {
	case state == nil && eval.ThresholdMet:
		state, err = e.trigger(ctx, eval, policy)
	case state != nil && !state.Resolved():
		state, err = e.refresh(ctx, eval)
	}
	if err != nil {
		return nil, err
	}
	eval.State = state
	eval.Phase = phaseOf(state)
	eval.VetoActive = state != nil && !state.Resolved() && eval.ThresholdMet && !state.Overridden
	return eval, nil
}

// trigger creates the veto state. Concurrent evaluations converge on the
// first stored state and its review window.
func (e *Engine) trigger(ctx context.Context, eval *models.VetoEvaluation, policy models.TierPolicy) (*models.VetoState, error) {
	now := e.now().UTC()
	candidate := &models.VetoState{
		ProposalID:          eval.ProposalID,
		Tier:                eval.Tier,
		MiningVetoPercent:   eval.MiningVetoPercent,
		EconomicVetoPercent: eval.EconomicVetoPercent,
		MiningThreshold:     eval.MiningThreshold,
		EconomicThreshold:   eval.EconomicThreshold,
		ThresholdMet:        true,
		VetoActive:          true,
		TriggeredAt:         now,
		ReviewPeriod:        policy.ReviewPeriod,
		ReviewEndsAt:        now.Add(policy.ReviewPeriod),
		UpdatedAt:           now,
	}
	stored, created, err := e.store.CreateVetoStateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		e.metrics.VetoTriggered(strconv.Itoa(eval.Tier))
		logger.Logger.Info("Veto triggered",
			zap.Int64("proposal_id", eval.ProposalID),
			zap.Int("tier", eval.Tier),
			zap.Float64("mining_veto_percent", eval.MiningVetoPercent),
			zap.Float64("economic_veto_percent", eval.EconomicVetoPercent),
			zap.Time("review_ends_at", stored.ReviewEndsAt))
		return stored, nil
	}
	return e.refresh(ctx, eval)
}

// refresh records the latest percentages on an unresolved state. Trigger
// time, review window and resolution are left untouched.
func (e *Engine) refresh(ctx context.Context, eval *models.VetoEvaluation) (*models.VetoState, error) {
	return e.store.UpdateVetoState(ctx, eval.ProposalID, func(s *models.VetoState) error {
		if s.Resolved() {
			return nil
		}
		s.MiningVetoPercent = eval.MiningVetoPercent
		s.EconomicVetoPercent = eval.EconomicVetoPercent
		s.MiningThreshold = eval.MiningThreshold
		s.EconomicThreshold = eval.EconomicThreshold
		s.ThresholdMet = eval.ThresholdMet
		s.VetoActive = eval.ThresholdMet && !s.Overridden
		s.UpdatedAt = e.now().UTC()
		return nil
	})
}
