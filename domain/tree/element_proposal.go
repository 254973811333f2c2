package tree

import (
	"encoding/json"
	"fmt"
	"time"

	"north-backend/domain/proposal"
)

// ProposalStatus tracks an engine run attached to an element.
type ProposalStatus string

const (
	StatusProcessing ProposalStatus = "processing"
	StatusCompleted  ProposalStatus = "completed"
	StatusFailed     ProposalStatus = "failed"
)

// ElementProposal is the envelope attached to a goal or ideal state while a
// suggestion is pending. Data is nil while processing and after a failure.
// An element in StatusProcessing is read-only for the UI.
type ElementProposal struct {
	Type      proposal.Kind    `json:"type"`
	Status    ProposalStatus   `json:"status"`
	Data      proposal.Payload `json:"data"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewElementProposal builds an envelope stamped with now.
func NewElementProposal(kind proposal.Kind, status ProposalStatus, data proposal.Payload, now time.Time) *ElementProposal {
	return &ElementProposal{Type: kind, Status: status, Data: data, CreatedAt: now}
}

type elementProposalJSON struct {
	Type      proposal.Kind   `json:"type"`
	Status    ProposalStatus  `json:"status"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// UnmarshalJSON decodes the payload according to the envelope's type and
// runs it through the proposal parser, so stored or client-supplied data is
// validated before anything reads it.
func (p *ElementProposal) UnmarshalJSON(b []byte) error {
	var wire elementProposalJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if !wire.Type.Valid() {
		return fmt.Errorf("unknown proposal type %q", wire.Type)
	}

	p.Type = wire.Type
	p.Status = wire.Status
	p.CreatedAt = wire.CreatedAt
	p.Data = nil
	if p.Status == "" {
		// Envelopes written before status tracking only existed once complete.
		p.Status = StatusCompleted
	}

	if len(wire.Data) == 0 {
		return nil
	}
	var raw any
	if err := json.Unmarshal(wire.Data, &raw); err != nil {
		return err
	}
	p.Data = proposal.Decode(wire.Type, raw)
	return nil
}
