package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	samples := []string{
		`{"type":"HELLO","protocol_version":"1.0","agent_name":"bot1","speed":7.5,"capabilities":{"max_queue":8}}`,
		`{"type":"WALK","protocol_version":"1.0","id":"W1","target":[5,16,5.5]}`,
		`{"type":"LOOK","protocol_version":"1.0","id":"L1","target":[0,20,-3]}`,
		`{"type":"SET_VOXEL","protocol_version":"1.0","id":"V1","pos":[1,17,1],"value":2}`,
		`{"type":"SUBSCRIBE","protocol_version":"1.0","waypoints":true}`,
	}
	for _, s := range samples {
		if _, err := Validate([]byte(s)); err != nil {
			t.Fatalf("validate %s: %v", s, err)
		}
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	bad := []string{
		`{"type":"WALK","protocol_version":"1.0","id":"W1","target":[5,16]}`,
		`{"type":"WALK","protocol_version":"1.0","target":[5,16,5]}`,
		`{"type":"SET_VOXEL","protocol_version":"1.0","id":"V1","pos":[1.5,17,1],"value":2}`,
		`{"type":"SET_VOXEL","protocol_version":"1.0","id":"V1","pos":[1,17,1],"value":-1}`,
		`{"type":"HELLO","protocol_version":"1.0","agent_name":"x","speed":0}`,
		`not json`,
	}
	for _, s := range bad {
		if _, err := Validate([]byte(s)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %s, got %v", s, err)
		}
	}
	if _, err := Validate([]byte(`{"type":"ACT","protocol_version":"1.0"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeValid(t *testing.T) {
	var w WalkMsg
	base, err := DecodeValid([]byte(`{"type":"WALK","protocol_version":"1.0","id":"W9","target":[1,2,3]}`), &w)
	if err != nil {
		t.Fatalf("DecodeValid: %v", err)
	}
	if base.ID != "W9" || w.Target != [3]float64{1, 2, 3} {
		t.Fatalf("base=%+v walk=%+v", base, w)
	}
}

func TestOutboundShapes(t *testing.T) {
	ack := NewAck("W1", 42)
	ack.Code = ErrInvalidTarget
	b, _ := json.Marshal(ack)
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != TypeAck || m["ack_for"] != "W1" || m["accepted"] != false || m["code"] != ErrInvalidTarget {
		t.Fatalf("unexpected ack: %s", b)
	}
	if !IsKnownCode(ack.Code) {
		t.Fatalf("ack uses unknown code %q", ack.Code)
	}
}
