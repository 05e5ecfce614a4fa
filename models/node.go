package models

import "time"

// NodeType is the stakeholder class an economic node qualifies under.
type NodeType string

const (
	MiningPool         NodeType = "mining_pool"
	Exchange           NodeType = "exchange"
	Custodian          NodeType = "custodian"
	PaymentProcessor   NodeType = "payment_processor"
	MajorHolder        NodeType = "major_holder"
	CommonsContributor NodeType = "commons_contributor"
)

// NodeTypes lists every known node type.
var NodeTypes = []NodeType{MiningPool, Exchange, Custodian, PaymentProcessor, MajorHolder, CommonsContributor}

func (t NodeType) Valid() bool {
	for _, nt := range NodeTypes {
		if t == nt {
			return true
		}
	}
	return false
}

// IsMining reports whether the node counts toward the hashpower population.
func (t NodeType) IsMining() bool { return t == MiningPool }

type NodeStatus string

const (
	StatusPending   NodeStatus = "pending"
	StatusActive    NodeStatus = "active"
	StatusSuspended NodeStatus = "suspended"
	StatusRemoved   NodeStatus = "removed"
)

func (s NodeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRemoved:
		return true
	}
	return false
}

// Node is a registered economic node.
type Node struct {
	ID           string                `json:"id"`
	Type         NodeType              `json:"node_type"`
	EntityName   string                `json:"entity_name"`
	PublicKey    string                `json:"public_key"`    // hex secp256k1, unique
	Evidence     QualificationEvidence `json:"qualification"` // weight is derived from this
	Weight       float64               `json:"weight"`        // in [0,1]
	Status       NodeStatus            `json:"status"`
	CreatedBy    string                `json:"created_by,omitempty"`
	Notes        string                `json:"notes,omitempty"`
	RegisteredAt time.Time             `json:"registered_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	WeighedAt    time.Time             `json:"last_weighed_at"`
}

// QualificationEvidence is a tagged union: the populated proof depends on the node type.
type QualificationEvidence struct {
	Hashpower *HashpowerProof `json:"hashpower,omitempty"`
	Holdings  *HoldingsProof  `json:"holdings,omitempty"`
	Volume    *VolumeProof    `json:"volume,omitempty"`
	Commons   *CommonsProof   `json:"commons,omitempty"`
}

type HashpowerProof struct {
	Percentage         float64  `json:"percentage"`
	BlocksMined        []string `json:"blocks_mined,omitempty"`
	PeriodDays         uint32   `json:"period_days"`
	TotalNetworkBlocks uint32   `json:"total_network_blocks,omitempty"`
}

type HoldingsProof struct {
	TotalBTC           float64  `json:"total_btc"`
	Addresses          []string `json:"addresses,omitempty"`
	SignatureChallenge string   `json:"signature_challenge,omitempty"`
}

type VolumeProof struct {
	DailyVolumeUSD   float64 `json:"daily_volume_usd"`
	MonthlyVolumeUSD float64 `json:"monthly_volume_usd"`
	DataSource       string  `json:"data_source,omitempty"`
}

// ContributionChannel names one commons contribution stream.
type ContributionChannel string

const (
	ChannelMergeMining   ContributionChannel = "merge_mining"
	ChannelFeeForwarding ContributionChannel = "fee_forwarding"
	ChannelZaps          ContributionChannel = "zaps"
	ChannelMarketplace   ContributionChannel = "marketplace"
	ChannelTreasurySales ContributionChannel = "treasury_sales"
	ChannelServiceSales  ContributionChannel = "service_sales"
)

// Channels is the canonical evaluation order.
var Channels = []ContributionChannel{
	ChannelMergeMining, ChannelFeeForwarding, ChannelZaps,
	ChannelMarketplace, ChannelTreasurySales, ChannelServiceSales,
}

// USDDenominated reports whether amounts on the channel are in USD rather than BTC.
func (c ContributionChannel) USDDenominated() bool {
	return c == ChannelTreasurySales || c == ChannelServiceSales
}

// Contribution is a measured amount over a measurement period.
type Contribution struct {
	Amount     float64 `json:"amount"`
	PeriodDays uint32  `json:"period_days"`
}

// CommonsProof bundles the contribution sub-proofs of a commons contributor.
type CommonsProof struct {
	ContributorID string                                `json:"contributor_id,omitempty"`
	Contributions map[ContributionChannel]Contribution `json:"contributions"`
}
