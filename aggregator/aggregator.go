// Package aggregator combines the veto engine's participation channel with
// the payment-backed weighted vote channel into one proposal decision.
package aggregator

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/models"
)

// ChannelVetoRatio is the share of weighted-channel veto weight that blocks
// a proposal on its own.
const ChannelVetoRatio = 0.4

// VoteStore holds the weighted vote channel.
type VoteStore interface {
	PutVote(ctx context.Context, vote *models.WeightedVote) error
	GetVotes(ctx context.Context, proposalID int64) ([]*models.WeightedVote, error)
}

// Evaluator is the part of the veto engine the aggregator reads.
type Evaluator interface {
	EvaluateThreshold(ctx context.Context, proposalID int64, tier int) (*models.VetoEvaluation, error)
}

type Aggregator struct {
	votes  VoteStore
	engine Evaluator
	now    func() time.Time
}

func New(votes VoteStore, engine Evaluator) *Aggregator {
	return &Aggregator{votes: votes, engine: engine, now: time.Now}
}

// ParseVoteType reads a vote type from free text.
func ParseVoteType(message string) models.SignalType {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "veto"), strings.Contains(m, "oppose"), strings.Contains(m, "against"):
		return models.SignalVeto
	case strings.Contains(m, "abstain"), strings.Contains(m, "neutral"):
		return models.SignalAbstain
	}
	return models.SignalSupport
}

// VoteWeight is the quadratic weight of a payment-backed vote.
func VoteWeight(amountBTC float64) float64 {
	if amountBTC <= 0 {
		return 0
	}
	return math.Sqrt(amountBTC)
}

// RecordVote stores a weighted vote. Missing ids and timestamps are filled in.
func (a *Aggregator) RecordVote(ctx context.Context, vote *models.WeightedVote) (string, error) {
	const op = "aggregator.RecordVote"
	if vote == nil {
		return "", errs.New(errs.Validation, op, "vote is required")
	}
	if vote.ProposalID <= 0 {
		return "", errs.New(errs.Validation, op, "proposal id must be positive, got %d", vote.ProposalID)
	}
	if strings.TrimSpace(vote.VoterID) == "" {
		return "", errs.New(errs.Validation, op, "voter id is required")
	}
	if !(vote.AmountBTC > 0) || math.IsInf(vote.AmountBTC, 0) {
		return "", errs.New(errs.Validation, op, "amount must be a positive number of BTC, got %v", vote.AmountBTC)
	}
	if vote.ID == "" {
		vote.ID = uuid.NewString()
	}
	if vote.Timestamp.IsZero() {
		vote.Timestamp = a.now().UTC()
	}
	if err := a.votes.PutVote(ctx, vote); err != nil {
		return "", err
	}
	logger.Logger.Info("Recorded weighted vote",
		zap.Int64("proposal_id", vote.ProposalID),
		zap.String("voter_id", vote.VoterID),
		zap.Float64("amount_btc", vote.AmountBTC),
		zap.String("vote_type", string(ParseVoteType(vote.Message))))
	return vote.ID, nil
}

// weightedChannel sums the payment-backed votes by parsed type.
func weightedChannel(votes []*models.WeightedVote) models.ChannelTotals {
	var c models.ChannelTotals
	for _, v := range votes {
		w := VoteWeight(v.AmountBTC)
		switch ParseVoteType(v.Message) {
		case models.SignalVeto:
			c.Veto += w
		case models.SignalAbstain:
			c.Abstain += w
		default:
			c.Support += w
		}
		c.Count++
	}
	return c
}

// participationChannel turns a veto evaluation into channel totals. A met
// threshold contributes the larger veto percentage; support is never inferred.
func participationChannel(eval *models.VetoEvaluation) models.ChannelTotals {
	var c models.ChannelTotals
	if eval.ThresholdMet {
		c.Veto = math.Max(eval.MiningVetoPercent, eval.EconomicVetoPercent)
		c.Count = 1
	}
	return c
}

// Aggregate combines both channels for a proposal at tier.
func (a *Aggregator) Aggregate(ctx context.Context, proposalID int64, tier int) (*models.ProposalVoteResult, error) {
	const op = "aggregator.Aggregate"
	policy, ok := models.PolicyForTier(tier)
	if !ok {
		return nil, errs.New(errs.Validation, op, "tier must be between %d and %d, got %d", models.MinTier, models.MaxTier, tier)
	}
	votes, err := a.votes.GetVotes(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	eval, err := a.engine.EvaluateThreshold(ctx, proposalID, tier)
	if err != nil {
		return nil, err
	}

	weighted := weightedChannel(votes)
	participation := participationChannel(eval)
	res := &models.ProposalVoteResult{
		ProposalID:       proposalID,
		Tier:             tier,
		SupportThreshold: policy.SupportThreshold,
		SupportVotes:     weighted.Support + participation.Support,
		VetoVotes:        weighted.Veto + participation.Veto,
		AbstainVotes:     weighted.Abstain + participation.Abstain,
		WeightedChannel:  weighted,
		Participation:    participation,
	}
	res.TotalVotes = res.SupportVotes + res.VetoVotes + res.AbstainVotes
	res.ThresholdMet = res.TotalVotes >= policy.SupportThreshold
	res.SupportShortfall = math.Max(0, policy.SupportThreshold-res.TotalVotes)

	res.EconomicVetoBlocks = tier >= 3 && eval.ThresholdMet
	if total := weighted.Total(); total > 0 {
		res.ChannelVetoRatio = weighted.Veto / total
	}
	res.ChannelVetoBlocks = res.ChannelVetoRatio >= ChannelVetoRatio
	res.VetoBlocks = res.EconomicVetoBlocks || res.ChannelVetoBlocks

	logger.Logger.Debug("Aggregated proposal votes",
		zap.Int64("proposal_id", proposalID),
		zap.Int("tier", tier),
		zap.Float64("total_votes", res.TotalVotes),
		zap.Bool("threshold_met", res.ThresholdMet),
		zap.Bool("veto_blocks", res.VetoBlocks))
	return res, nil
}
