package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

// checkpointModel is the stored document. Position and values keep their
// JSON text so numbers and nested values read back exactly as written.
type checkpointModel struct {
	ExecutionID  string    `bson:"_id"`
	ID           string    `bson:"checkpoint_id"`
	Graph        string    `bson:"graph"`
	GraphVersion int       `bson:"graph_version"`
	Status       string    `bson:"status"`
	Position     string    `bson:"position"`
	Values       string    `bson:"state_values"`
	StateVersion int64     `bson:"state_version"`
	Step         int64     `bson:"step"`
	Error        string    `bson:"error"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toCheckpointModel(cp *checkpoint.Checkpoint) (*checkpointModel, error) {
	position, err := json.Marshal(cp.Position)
	if err != nil {
		return nil, fmt.Errorf("drafter/mongo: encode position: %w", err)
	}
	values, err := json.Marshal(cp.Values)
	if err != nil {
		return nil, fmt.Errorf("drafter/mongo: encode values: %w", err)
	}
	return &checkpointModel{
		ExecutionID:  cp.ExecutionID.String(),
		ID:           cp.ID.String(),
		Graph:        cp.Graph,
		GraphVersion: cp.GraphVersion,
		Status:       string(cp.Status),
		Position:     string(position),
		Values:       string(values),
		StateVersion: cp.StateVersion,
		Step:         cp.Step,
		Error:        cp.Error,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	}, nil
}

// checkpointFields is the $set document of an overwrite. created_at is
// left alone.
func checkpointFields(m *checkpointModel) bson.M {
	return bson.M{
		"checkpoint_id": m.ID,
		"graph":         m.Graph,
		"graph_version": m.GraphVersion,
		"status":        m.Status,
		"position":      m.Position,
		"state_values":  m.Values,
		"state_version": m.StateVersion,
		"step":          m.Step,
		"error":         m.Error,
		"updated_at":    m.UpdatedAt,
	}
}

func fromCheckpointModel(m *checkpointModel) (*checkpoint.Checkpoint, error) {
	execID, err := id.ParseExecutionID(m.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("drafter/mongo: parse execution id %q: %w", m.ExecutionID, err)
	}
	cpID, err := id.ParseCheckpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("drafter/mongo: parse checkpoint id %q: %w", m.ID, err)
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
	if err := json.Unmarshal([]byte(m.Position), &cp.Position); err != nil {
		return nil, fmt.Errorf("drafter/mongo: decode position: %w", err)
	}
	if err := json.Unmarshal([]byte(m.Values), &cp.Values); err != nil {
		return nil, fmt.Errorf("drafter/mongo: decode values: %w", err)
	}
	return cp, nil
}
