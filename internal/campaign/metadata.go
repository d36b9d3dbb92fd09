package campaign

import (
	"encoding/json"
	"fmt"
)

// Off-chain metadata schemas. Every pinned payload carries an explicit
// schema tag validated on read.
const (
	SchemaCampaignV1       = "verdant-vault.campaign.v1"
	SchemaMilestoneProofV1 = "verdant-vault.milestone-proof.v1"
)

// Metadata describes a campaign's off-chain descriptive payload. The state
// machine never interprets these fields; they exist for display and audit.
type Metadata struct {
	Schema           string   `json:"schema"`
	FarmName         string   `json:"farmName"`
	Location         string   `json:"location"`
	Hectares         float64  `json:"hectares"`
	CropType         string   `json:"cropType,omitempty"`
	Description      string   `json:"description"`
	FundingGoalHBAR  float64  `json:"fundingGoalHBAR"`
	DurationDays     int      `json:"durationDays"`
	EstimatedCO2Tons float64  `json:"estimatedCO2Tons"`
	Files            []string `json:"files,omitempty"`
	Timestamp        string   `json:"timestamp,omitempty"`
}

// ProofMetadata describes a milestone proof payload
type ProofMetadata struct {
	Schema         string   `json:"schema"`
	CampaignID     uint64   `json:"campaignId"`
	MilestoneIndex int      `json:"milestoneIndex"`
	Note           string   `json:"note,omitempty"`
	Files          []string `json:"files,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// ParseMetadata decodes and validates a campaign metadata payload
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid campaign metadata: %w", err)
	}
	if m.Schema != SchemaCampaignV1 {
		return nil, fmt.Errorf("unsupported metadata schema %q", m.Schema)
	}
	return &m, nil
}

// ParseProofMetadata decodes and validates a milestone proof payload
func ParseProofMetadata(data []byte) (*ProofMetadata, error) {
	var m ProofMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid proof metadata: %w", err)
	}
	if m.Schema != SchemaMilestoneProofV1 {
		return nil, fmt.Errorf("unsupported metadata schema %q", m.Schema)
	}
	return &m, nil
}
