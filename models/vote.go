package models

import "time"

// WeightedVote is one entry of the external payment-backed vote channel.
type WeightedVote struct {
	ID         string    `json:"id"`
	ProposalID int64     `json:"proposal_id"`
	VoterID    string    `json:"voter_id"`
	AmountBTC  float64   `json:"amount_btc"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChannelTotals sums one vote channel by vote type.
type ChannelTotals struct {
	Support float64 `json:"support"`
	Veto    float64 `json:"veto"`
	Abstain float64 `json:"abstain"`
	Count   int     `json:"count"`
}

func (c ChannelTotals) Total() float64 { return c.Support + c.Veto + c.Abstain }

// ProposalVoteResult is the combined decision over every vote channel.
type ProposalVoteResult struct {
	ProposalID         int64         `json:"proposal_id"`
	Tier               int           `json:"tier"`
	SupportThreshold   float64       `json:"support_threshold"`
	TotalVotes         float64       `json:"total_votes"`
	SupportVotes       float64       `json:"support_votes"`
	VetoVotes          float64       `json:"veto_votes"`
	AbstainVotes       float64       `json:"abstain_votes"`
	WeightedChannel    ChannelTotals `json:"weighted_channel"`
	Participation      ChannelTotals `json:"participation_channel"`
	ThresholdMet       bool          `json:"threshold_met"`
	SupportShortfall   float64       `json:"support_shortfall"`
	EconomicVetoBlocks bool          `json:"economic_veto_blocks"`
	ChannelVetoBlocks  bool          `json:"channel_veto_blocks"`
	ChannelVetoRatio   float64       `json:"channel_veto_ratio"`
	VetoBlocks         bool          `json:"veto_blocks"`
}
