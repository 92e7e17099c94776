package types

import (
	"fmt"
	"time"
)

// InteractionOption is one selectable choice in a human interaction.
type InteractionOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// HumanInteraction describes a pending request for human input. It is
// produced by a human-interaction node and stored on the checkpoint while the
// run is paused.
type HumanInteraction struct {
	NodeID        string              `json:"node_id"`
	Prompt        string              `json:"prompt"`
	Options       []InteractionOption `json:"options,omitempty"`
	AllowFreeText bool                `json:"allow_free_text"`
	ExpiresAt     time.Time           `json:"expires_at,omitzero"`
}

// HumanResponse carries the human's answer for a paused interaction.
type HumanResponse struct {
	NodeID    string    `json:"node_id"`
	OptionID  string    `json:"option_id,omitempty"`
	FreeText  string    `json:"free_text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHumanResponse creates a response answering the given node.
func NewHumanResponse(nodeID, optionID, freeText string) HumanResponse {
	return HumanResponse{
		NodeID:    nodeID,
		OptionID:  optionID,
		FreeText:  freeText,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks a response against the interaction's declared options.
// When AllowFreeText is false, the response must select one of the listed
// option ids.
func (i HumanInteraction) Validate(resp HumanResponse) error {
	if resp.NodeID != i.NodeID {
		return NewError(ErrInvalidHumanResponse,
			fmt.Sprintf("response addresses node %q, interaction belongs to node %q", resp.NodeID, i.NodeID)).
			WithNodeID(i.NodeID)
	}
	if !i.ExpiresAt.IsZero() && resp.Timestamp.After(i.ExpiresAt) {
		return NewError(ErrInvalidHumanResponse, "interaction expired").WithNodeID(i.NodeID)
	}
	if i.AllowFreeText && resp.OptionID == "" {
		if resp.FreeText == "" {
			return NewError(ErrInvalidHumanResponse, "empty response").WithNodeID(i.NodeID)
		}
		return nil
	}
	if resp.OptionID == "" {
		return NewError(ErrInvalidHumanResponse, "option selection required").WithNodeID(i.NodeID)
	}
	for _, opt := range i.Options {
		if opt.ID == resp.OptionID {
			return nil
		}
	}
	return NewError(ErrInvalidHumanResponse,
		fmt.Sprintf("option %q is not declared by the interaction", resp.OptionID)).
		WithNodeID(i.NodeID)
}
