package models

import "time"

type ResolutionPath string

const (
	ResolutionNone      ResolutionPath = ""
	ResolutionOverride  ResolutionPath = "override"
	ResolutionConsensus ResolutionPath = "consensus"
)

// VetoState is the per-proposal veto record. It exists only once a veto has
// been triggered; TriggeredAt and ReviewEndsAt never change after creation
// and Resolution is written at most once.
type VetoState struct {
	ProposalID          int64          `json:"proposal_id"`
	Tier                int            `json:"tier"`
	MiningVetoPercent   float64        `json:"mining_veto_percent"`
	EconomicVetoPercent float64        `json:"economic_veto_percent"`
	MiningThreshold     float64        `json:"mining_threshold"`
	EconomicThreshold   float64        `json:"economic_threshold"`
	ThresholdMet        bool           `json:"threshold_met"`
	VetoActive          bool           `json:"veto_active"`
	TriggeredAt         time.Time      `json:"triggered_at"`
	ReviewPeriod        time.Duration  `json:"review_period"`
	ReviewEndsAt        time.Time      `json:"review_ends_at"`
	Overridden          bool           `json:"overridden"`
	OverrideAt          *time.Time     `json:"override_at,omitempty"`
	OverrideBy          string         `json:"override_by,omitempty"`
	Resolution          ResolutionPath `json:"resolution_path,omitempty"`
	ResolvedAt          *time.Time     `json:"resolved_at,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (s *VetoState) Resolved() bool { return s.Resolution != ResolutionNone }

// VetoPhase is the state machine position of a proposal.
type VetoPhase string

const (
	PhaseDormant   VetoPhase = "dormant"
	PhaseTriggered VetoPhase = "triggered"
	PhaseResolved  VetoPhase = "resolved"
)

// VetoEvaluation is the result of evaluating a proposal's veto threshold.
// State is nil while the proposal is dormant.
type VetoEvaluation struct {
	ProposalID          int64      `json:"proposal_id"`
	Tier                int        `json:"tier"`
	Phase               VetoPhase  `json:"phase"`
	MiningVetoPercent   float64    `json:"mining_veto_percent"`
	EconomicVetoPercent float64    `json:"economic_veto_percent"`
	MiningThreshold     float64    `json:"mining_threshold"`
	EconomicThreshold   float64    `json:"economic_threshold"`
	MiningShortfall     float64    `json:"mining_shortfall"`   // percentage points still missing, 0 if met
	EconomicShortfall   float64    `json:"economic_shortfall"` // percentage points still missing, 0 if met
	ThresholdMet        bool       `json:"threshold_met"`
	VetoActive          bool       `json:"veto_active"`
	VetoEligible        bool       `json:"veto_eligible"`
	State               *VetoState `json:"state,omitempty"`
}
