package veto

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/models"
)

// GetVetoState returns the stored veto state, or NotFound while dormant.
func (e *Engine) GetVetoState(ctx context.Context, proposalID int64) (*models.VetoState, error) {
	return e.store.GetVetoState(ctx, proposalID)
}

// Override resolves a triggered veto once its review period has ended. A
// dormant proposal is NotFound with reason not_triggered; a resolved one is a
// State error with reason already_resolved.
func (e *Engine) Override(ctx context.Context, proposalID int64, actor string) (*models.VetoState, error) {
	const op = "veto.Override"
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errs.New(errs.Validation, op, "override actor is required")
	}
	state, err := e.store.UpdateVetoState(ctx, proposalID, func(s *models.VetoState) error {
		now := e.now().UTC()
		if s.Resolved() {
			return errs.StateErr(op, errs.ReasonAlreadyResolved, "proposal #%d resolved by %s", proposalID, s.Resolution)
		}
		if now.Before(s.ReviewEndsAt) {
			return errs.StateErr(op, errs.ReasonTooEarly, "review period of proposal #%d ends at %s", proposalID, s.ReviewEndsAt.Format(time.RFC3339))
		}
		s.Overridden = true
		s.OverrideAt = &now
		s.OverrideBy = actor
		s.Resolution = models.ResolutionOverride
		s.ResolvedAt = &now
		s.VetoActive = false
		s.UpdatedAt = now
		return nil
	})
	if errs.IsKind(err, errs.NotFound) {
		err = errs.WithReason(errs.NotFound, op, errs.ReasonNotTriggered, "proposal #%d has no triggered veto", proposalID)
	}
	if err != nil {
		logger.Logger.Warn("Override refused",
			zap.Int64("proposal_id", proposalID), zap.String("actor", actor), zap.Error(err))
		return nil, err
	}

	e.metrics.VetoResolved(string(models.ResolutionOverride))
	logger.Logger.Info("Veto overridden",
		zap.Int64("proposal_id", proposalID), zap.String("actor", actor))
	return state, nil
}

// CheckConsensus resolves a triggered veto by consensus when opposition has
// fallen below the threshold. It reports whether this call resolved it.
func (e *Engine) CheckConsensus(ctx context.Context, proposalID int64, tier int) (bool, error) {
	eval, err := e.EvaluateThreshold(ctx, proposalID, tier)
	if err != nil {
		return false, err
	}
	if eval.Phase != models.PhaseTriggered || eval.ThresholdMet || !eval.VetoEligible {
		return false, nil
	}

	resolved := false
	_, err = e.store.UpdateVetoState(ctx, proposalID, func(s *models.VetoState) error {
		// Another evaluation may have seen the threshold met again.
		if s.Resolved() || s.ThresholdMet {
			return nil
		}
		now := e.now().UTC()
		s.Resolution = models.ResolutionConsensus
		s.ResolvedAt = &now
		s.ThresholdMet = false
		s.VetoActive = false
		s.UpdatedAt = now
		resolved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if resolved {
		e.metrics.VetoResolved(string(models.ResolutionConsensus))
		logger.Logger.Info("Veto resolved by consensus",
			zap.Int64("proposal_id", proposalID),
			zap.Float64("mining_veto_percent", eval.MiningVetoPercent),
			zap.Float64("economic_veto_percent", eval.EconomicVetoPercent))
	}
	return resolved, nil
}

// PendingReviews lists triggered, unresolved vetoes ordered by review end.
func (e *Engine) PendingReviews(ctx context.Context) ([]*models.VetoState, error) {
	states, err := e.store.ListVetoStates(ctx)
	if err != nil {
		return nil, err
	}
	pending := states[:0]
	for _, s := range states {
		if !s.Resolved() {
			pending = append(pending, s)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].ReviewEndsAt.Before(pending[j].ReviewEndsAt)
	})
	return pending, nil
}
