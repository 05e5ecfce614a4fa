package models

import "time"

type SignalType string

const (
	SignalVeto    SignalType = "veto"
	SignalSupport SignalType = "support"
	SignalAbstain SignalType = "abstain"
)

func (s SignalType) Valid() bool {
	return s == SignalVeto || s == SignalSupport || s == SignalAbstain
}

// VetoSignal is a signed position of one node on one proposal.
// Weight is the node's weight at submission and never changes afterwards.
type VetoSignal struct {
	ID              string     `json:"id"`
	ProposalID      int64      `json:"proposal_id"`
	NodeID          string     `json:"node_id"`
	NodeType        NodeType   `json:"node_type"`
	Type            SignalType `json:"signal_type"`
	Weight          float64    `json:"weight"`
	Signature       string     `json:"signature"`
	Rationale       string     `json:"rationale"`
	Timestamp       time.Time  `json:"timestamp"`
	Verified        bool       `json:"verified"`
	VotingPublicKey string     `json:"voting_public_key,omitempty"`
	VotingKeyPath   string     `json:"voting_key_path,omitempty"`
}
