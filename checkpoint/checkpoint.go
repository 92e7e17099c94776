package checkpoint

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentgraph/types"
)

// Status describes why a checkpoint exists.
type Status string

const (
	// StatusRunning marks a periodic checkpoint of a run in flight.
	StatusRunning Status = "running"
	// StatusWaitingHuman marks a run paused at a human-interaction node.
	StatusWaitingHuman Status = "waiting_human"
	// StatusFailed marks the snapshot of a run that aborted.
	StatusFailed Status = "failed"
)

// Checkpoint is a durable snapshot of "where a run is". It is never mutated
// in place: resuming a run that pauses again produces a new checkpoint.
type Checkpoint struct {
	ID      string `json:"id"`
	RunID   string `json:"run_id"`
	GraphID string `json:"graph_id"`
	// NodeID is the node to resume at: the paused human-interaction node, or
	// the node after the last completed one for periodic checkpoints.
	NodeID    string                  `json:"node_id"`
	Message   types.ExecutionMessage  `json:"message"`
	Status    Status                  `json:"status"`
	Pending   *types.HumanInteraction `json:"pending,omitempty"`
	Response  *types.HumanResponse    `json:"response,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	Metadata  map[string]string       `json:"metadata,omitempty"`
}

// New creates a checkpoint for the given run position.
func New(runID, graphID, nodeID string, msg types.ExecutionMessage, status Status) *Checkpoint {
	return &Checkpoint{
		ID:        uuid.NewString(),
		RunID:     runID,
		GraphID:   graphID,
		NodeID:    nodeID,
		Message:   msg,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

// Store is the persistence contract consumed by the runner. Implementations
// must be safe for concurrent use by multiple runs and runner instances, and
// writes for a given checkpoint id must be atomic create-or-overwrite.
type Store interface {
	// Save persists the checkpoint and applies the store's retention policy
	// to the checkpoint's run.
	Save(ctx context.Context, cp *Checkpoint) error
	// Load retrieves a checkpoint by id. Returns a CHECKPOINT_NOT_FOUND
	// error when absent or expired.
	Load(ctx context.Context, id string) (*Checkpoint, error)
	// Delete removes a checkpoint. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// ListByRun returns a run's checkpoints, oldest first.
	ListByRun(ctx context.Context, runID string) ([]*Checkpoint, error)
}

// ErrNotFound builds the canonical not-found error for the given id.
func ErrNotFound(id string) error {
	return types.NewError(types.ErrCheckpointNotFound, "checkpoint not found: "+id)
}
