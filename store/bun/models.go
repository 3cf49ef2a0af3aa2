package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

type checkpointModel struct {
	bun.BaseModel `bun:"table:drafter_checkpoints"`

	ExecutionID  string          `bun:"execution_id,pk"`
	ID           string          `bun:"id,notnull"`
	Graph        string          `bun:"graph,notnull"`
	GraphVersion int             `bun:"graph_version,notnull"`
	Status       string          `bun:"status,notnull"`
	Position     json.RawMessage `bun:"position,notnull,type:jsonb"`
	Values       json.RawMessage `bun:"state_values,notnull,type:jsonb"`
	StateVersion int64           `bun:"state_version,notnull,default:0"`
	Step         int64           `bun:"step,notnull,default:0"`
	Error        string          `bun:"error,notnull,default:''"`
	CreatedAt    time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toCheckpointModel(cp *checkpoint.Checkpoint) (*checkpointModel, error) {
	position, err := json.Marshal(cp.Position)
	if err != nil {
		return nil, fmt.Errorf("drafter/bun: encode position: %w", err)
	}
	values, err := json.Marshal(cp.Values)
	if err != nil {
		return nil, fmt.Errorf("drafter/bun: encode values: %w", err)
	}
	return &checkpointModel{
		ExecutionID:  cp.ExecutionID.String(),
		ID:           cp.ID.String(),
		Graph:        cp.Graph,
		GraphVersion: cp.GraphVersion,
		Status:       string(cp.Status),
		Position:     position,
		Values:       values,
		StateVersion: cp.StateVersion,
		Step:         cp.Step,
		Error:        cp.Error,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	}, nil
}

func fromCheckpointModel(m *checkpointModel) (*checkpoint.Checkpoint, error) {
	execID, err := id.ParseExecutionID(m.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("drafter/bun: parse execution id %q: %w", m.ExecutionID, err)
	}
	cpID, err := id.ParseCheckpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("drafter/bun: parse checkpoint id %q: %w", m.ID, err)
	}

	cp := &checkpoint.Checkpoint{
		ID:           cpID,
		ExecutionID:  execID,
		Graph:        m.Graph,
		GraphVersion: m.GraphVersion,
		Status:       checkpoint.Status(m.Status),
		StateVersion: m.StateVersion,
		Step:         m.Step,
		Error:        m.Error,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if err := json.Unmarshal(m.Position, &cp.Position); err != nil {
		return nil, fmt.Errorf("drafter/bun: decode position: %w", err)
	}
	if err := json.Unmarshal(m.Values, &cp.Values); err != nil {
		return nil, fmt.Errorf("drafter/bun: decode values: %w", err)
	}
	return cp, nil
}
