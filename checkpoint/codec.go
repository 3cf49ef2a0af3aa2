package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/drafter/id"
)

// Codec serializes checkpoints for backends that store opaque blobs.
type Codec interface {
	// Encode serializes a checkpoint.
	Encode(cp *Checkpoint) ([]byte, error)

	// Decode deserializes a checkpoint.
	Decode(data []byte) (*Checkpoint, error)

	// Name returns the codec identifier ("json", "msgpack").
	Name() string
}

// Codec names.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return &MsgpackCodec{}
	default:
		return &JSONCodec{}
	}
}

// JSONCodec encodes checkpoints as JSON.
type JSONCodec struct{}

func (c *JSONCodec) Encode(cp *Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func (c *JSONCodec) Decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes checkpoints as MessagePack. Ids travel as strings.
type MsgpackCodec struct{}

type msgpackRecord struct {
	ID           string         `msgpack:"id"`
	ExecutionID  string         `msgpack:"execution_id"`
	Graph        string         `msgpack:"graph"`
	GraphVersion int            `msgpack:"graph_version"`
	Status       Status         `msgpack:"status"`
	Position     Position       `msgpack:"position"`
	Values       map[string]any `msgpack:"values"`
	StateVersion int64          `msgpack:"state_version"`
	Step         int64          `msgpack:"step"`
	Error        string         `msgpack:"error,omitempty"`
	CreatedAt    time.Time      `msgpack:"created_at"`
	UpdatedAt    time.Time      `msgpack:"updated_at"`
}

func (c *MsgpackCodec) Encode(cp *Checkpoint) ([]byte, error) {
	return msgpack.Marshal(&msgpackRecord{
		ID:           cp.ID.String(),
		ExecutionID:  cp.ExecutionID.String(),
		Graph:        cp.Graph,
		GraphVersion: cp.GraphVersion,
		Status:       cp.Status,
		Position:     cp.Position,
		Values:       cp.Values,
		StateVersion: cp.StateVersion,
		Step:         cp.Step,
		Error:        cp.Error,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	})
}

func (c *MsgpackCodec) Decode(data []byte) (*Checkpoint, error) {
	var r msgpackRecord
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		Graph:        r.Graph,
		GraphVersion: r.GraphVersion,
		Status:       r.Status,
		Position:     r.Position,
		Values:       r.Values,
		StateVersion: r.StateVersion,
		Step:         r.Step,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	for k, v := range cp.Values {
		cp.Values[k] = normalizeMsgpack(v)
	}
	if cp.Position.Suspended != nil {
		cp.Position.Suspended.Payload = normalizeMsgpack(cp.Position.Suspended.Payload)
		for i, v := range cp.Position.Suspended.Resumes {
			cp.Position.Suspended.Resumes[i] = normalizeMsgpack(v)
		}
	}
	var err error
	if r.ID != "" {
		if cp.ID, err = id.ParseCheckpointID(r.ID); err != nil {
			return nil, fmt.Errorf("checkpoint id: %w", err)
		}
	}
	if cp.ExecutionID, err = id.ParseExecutionID(r.ExecutionID); err != nil {
		return nil, fmt.Errorf("execution id: %w", err)
	}
	return cp, nil
}

func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }

// normalizeMsgpack maps decoded MessagePack values onto the JSON forms the
// state container uses: every number becomes float64.
func normalizeMsgpack(v any) any {
	switch x := v.(type) {
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		for i, e := range x {
			x[i] = normalizeMsgpack(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeMsgpack(e)
		}
		return x
	default:
		return x
	}
}
