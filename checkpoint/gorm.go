package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentgraph/types"
)

// checkpointRecord is the gorm model backing GormStore. The message and
// interaction payloads are stored as JSON so the schema stays stable while
// the message shape evolves.
type checkpointRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	RunID     string `gorm:"index;size:64"`
	GraphID   string `gorm:"size:128"`
	NodeID    string `gorm:"size:128"`
	Status    string `gorm:"size:32"`
	Message   []byte
	Pending   []byte
	Response  []byte
	Metadata  []byte
	CreatedAt time.Time `gorm:"index"`
}

func (checkpointRecord) TableName() string { return "agentgraph_checkpoints" }

// GormStore persists checkpoints in any gorm-supported SQL database.
type GormStore struct {
	db        *gorm.DB
	maxPerRun int
	logger    *zap.Logger
}

// GormStoreOption configures a GormStore.
type GormStoreOption func(*GormStore)

// WithGormMaxPerRun bounds retained checkpoints per run (0 = unlimited).
func WithGormMaxPerRun(n int) GormStoreOption {
	return func(s *GormStore) {
		s.maxPerRun = n
	}
}

// WithGormLogger sets the store's logger.
func WithGormLogger(logger *zap.Logger) GormStoreOption {
	return func(s *GormStore) {
		s.logger = logger
	}
}

// NewGormStore creates a SQL-backed checkpoint store and migrates its table.
func NewGormStore(db *gorm.DB, opts ...GormStoreOption) (*GormStore, error) {
	s := &GormStore{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "gorm_checkpoint_store"))

	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("migrate checkpoint table: %w", err)
	}
	return s, nil
}

func (s *GormStore) Save(ctx context.Context, cp *Checkpoint) error {
	record, err := toRecord(cp)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(record).Error; err != nil {
			return err
		}
		if s.maxPerRun <= 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&checkpointRecord{}).Where("run_id = ?", cp.RunID).Count(&count).Error; err != nil {
			return err
		}
		excess := int(count) - s.maxPerRun
		if excess <= 0 {
			return nil
		}

		var evict []string
		if err := tx.Model(&checkpointRecord{}).
			Where("run_id = ?", cp.RunID).
			Order("created_at asc").
			Limit(excess).
			Pluck("id", &evict).Error; err != nil {
			return err
		}
		return tx.Delete(&checkpointRecord{}, "id IN ?", evict).Error
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *GormStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	var record checkpointRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return fromRecord(&record)
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&checkpointRecord{}, "id = ?", id).Error
}

func (s *GormStore) ListByRun(ctx context.Context, runID string) ([]*Checkpoint, error) {
	var records []checkpointRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	out := make([]*Checkpoint, 0, len(records))
	for i := range records {
		cp, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func toRecord(cp *Checkpoint) (*checkpointRecord, error) {
	message, err := json.Marshal(cp.Message)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	record := &checkpointRecord{
		ID:        cp.ID,
		RunID:     cp.RunID,
		GraphID:   cp.GraphID,
		NodeID:    cp.NodeID,
		Status:    string(cp.Status),
		Message:   message,
		CreatedAt: cp.CreatedAt,
	}
	if cp.Pending != nil {
		if record.Pending, err = json.Marshal(cp.Pending); err != nil {
			return nil, fmt.Errorf("marshal pending interaction: %w", err)
		}
	}
	if cp.Response != nil {
		if record.Response, err = json.Marshal(cp.Response); err != nil {
			return nil, fmt.Errorf("marshal response: %w", err)
		}
	}
	if cp.Metadata != nil {
		if record.Metadata, err = json.Marshal(cp.Metadata); err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return record, nil
}

func fromRecord(record *checkpointRecord) (*Checkpoint, error) {
	cp := &Checkpoint{
		ID:        record.ID,
		RunID:     record.RunID,
		GraphID:   record.GraphID,
		NodeID:    record.NodeID,
		Status:    Status(record.Status),
		CreatedAt: record.CreatedAt,
	}
	if err := json.Unmarshal(record.Message, &cp.Message); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if len(record.Pending) > 0 {
		cp.Pending = &types.HumanInteraction{}
		if err := json.Unmarshal(record.Pending, cp.Pending); err != nil {
			return nil, fmt.Errorf("unmarshal pending interaction: %w", err)
		}
	}
	if len(record.Response) > 0 {
		cp.Response = &types.HumanResponse{}
		if err := json.Unmarshal(record.Response, cp.Response); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	if len(record.Metadata) > 0 {
		if err := json.Unmarshal(record.Metadata, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return cp, nil
}
