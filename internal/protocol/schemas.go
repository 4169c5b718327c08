package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	ErrUnknownType = errors.New("protocol: unknown message type")
	ErrInvalid     = errors.New("protocol: message failed schema validation")
)

// inbound message type -> schema file
var schemaFiles = map[string]string{
	TypeHello:     "hello.schema.json",
	TypeWalk:      "walk.schema.json",
	TypeLook:      "look.schema.json",
	TypeSetVoxel:  "set_voxel.schema.json",
	TypeSubscribe: "subscribe.schema.json",
}

const schemaBaseURL = "https://voxelnav.ai/schemas/"

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		for _, name := range schemaFiles {
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, name := range schemaFiles {
			s, err := c.Compile(schemaBaseURL + name)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks an inbound message against the schema for its type and
// returns the routing header.
func Validate(raw []byte) (BaseMessage, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	all, err := loadSchemas()
	if err != nil {
		return base, err
	}
	s, ok := all[base.Type]
	if !ok {
		return base, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.Validate(v); err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return base, nil
}

// DecodeValid validates raw and unmarshals it into dst.
func DecodeValid(raw []byte, dst any) (BaseMessage, error) {
	base, err := Validate(raw)
	if err != nil {
		return base, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return base, nil
}
