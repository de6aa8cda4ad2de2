package jobrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AltairaLabs/diagram-studio/internal/orchestrator"
)

// EncodeEvent converts a job event to its Struct envelope.
func EncodeEvent(ev orchestrator.Event) (*structpb.Struct, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return s, nil
}

// DecodeEvent converts a Struct envelope back to a job event.
func DecodeEvent(s *structpb.Struct) (orchestrator.Event, error) {
	var ev orchestrator.Event
	if s == nil {
		return ev, fmt.Errorf("%w: empty request", orchestrator.ErrInvalidJob)
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		return ev, fmt.Errorf("%w: %w", orchestrator.ErrInvalidJob, err)
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, fmt.Errorf("%w: %w", orchestrator.ErrInvalidJob, err)
	}
	return ev, nil
}
