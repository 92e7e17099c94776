package types

import (
	"time"

	"github.com/google/uuid"
)

// ToolCall represents an external tool invocation requested by a node.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ExecutionMessage is the single unit of data threaded through a graph.
//
// The message is an immutable value: every mutating operation returns a new
// message and leaves the receiver untouched. Map and slice fields are cloned
// on write so no two messages alias the same backing storage.
type ExecutionMessage struct {
	// Identity
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id,omitempty"`

	// Payload
	Content   string         `json:"content,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`

	// Lifecycle
	State   MessageState      `json:"state"`
	History []StateTransition `json:"history,omitempty"`

	// Graph context
	GraphID string `json:"graph_id,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`

	// Routing metadata
	Metadata  map[string]string `json:"metadata,omitempty"`
	Sender    string            `json:"sender,omitempty"`
	Recipient string            `json:"recipient,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at,omitzero"`
}

// NewMessage creates a new READY message with the given content. The
// correlation id defaults to the message's own id until the message joins an
// existing conversation via Reply.
func NewMessage(content string) ExecutionMessage {
	id := uuid.NewString()
	return ExecutionMessage{
		ID:            id,
		CorrelationID: id,
		Content:       content,
		State:         StateReady,
		CreatedAt:     time.Now().UTC(),
	}
}

// Reply creates a new message caused by m, preserving the correlation id and
// graph context so the reply stays attributable to the same logical run.
func (m ExecutionMessage) Reply(content string) ExecutionMessage {
	return ExecutionMessage{
		ID:            uuid.NewString(),
		CorrelationID: m.CorrelationID,
		CausationID:   m.ID,
		Content:       content,
		Data:          cloneData(m.Data),
		State:         m.State,
		History:       cloneHistory(m.History),
		GraphID:       m.GraphID,
		NodeID:        m.NodeID,
		RunID:         m.RunID,
		Metadata:      cloneMetadata(m.Metadata),
		Sender:        m.Recipient,
		Recipient:     m.Sender,
		CreatedAt:     time.Now().UTC(),
	}
}

// WithContent returns a copy of the message with replaced content.
func (m ExecutionMessage) WithContent(content string) ExecutionMessage {
	m.Content = content
	return m
}

// WithData returns a copy of the message with the key set in its data map.
func (m ExecutionMessage) WithData(key string, value any) ExecutionMessage {
	data := cloneData(m.Data)
	if data == nil {
		data = make(map[string]any, 1)
	}
	data[key] = value
	m.Data = data
	return m
}

// WithDataMap returns a copy of the message with all entries merged into its
// data map. Existing keys are overwritten.
func (m ExecutionMessage) WithDataMap(entries map[string]any) ExecutionMessage {
	if len(entries) == 0 {
		return m
	}
	data := cloneData(m.Data)
	if data == nil {
		data = make(map[string]any, len(entries))
	}
	for k, v := range entries {
		data[k] = v
	}
	m.Data = data
	return m
}

// GetData retrieves a value from the message's data map.
func (m ExecutionMessage) GetData(key string) (any, bool) {
	v, ok := m.Data[key]
	return v, ok
}

// WithToolCalls returns a copy of the message with the given tool calls.
func (m ExecutionMessage) WithToolCalls(calls []ToolCall) ExecutionMessage {
	m.ToolCalls = append([]ToolCall(nil), calls...)
	return m
}

// WithGraphContext returns a copy of the message attached to a graph run.
func (m ExecutionMessage) WithGraphContext(graphID, nodeID, runID string) ExecutionMessage {
	m.GraphID = graphID
	m.NodeID = nodeID
	m.RunID = runID
	return m
}

// WithNodeID returns a copy of the message positioned at the given node.
func (m ExecutionMessage) WithNodeID(nodeID string) ExecutionMessage {
	m.NodeID = nodeID
	return m
}

// WithMetadata returns a copy of the message with the metadata key set.
func (m ExecutionMessage) WithMetadata(key, value string) ExecutionMessage {
	md := cloneMetadata(m.Metadata)
	if md == nil {
		md = make(map[string]string, 1)
	}
	md[key] = value
	m.Metadata = md
	return m
}

// WithExpiry returns a copy of the message with an expiry deadline.
func (m ExecutionMessage) WithExpiry(at time.Time) ExecutionMessage {
	m.ExpiresAt = at
	return m
}

// Expired reports whether the message carries an expiry in the past.
func (m ExecutionMessage) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func cloneMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func cloneHistory(h []StateTransition) []StateTransition {
	if h == nil {
		return nil
	}
	return append([]StateTransition(nil), h...)
}
