package artifact

import (
	"encoding/json"
	"fmt"
	"io"

	"modeldb-client/pkg/domain"
)

// JSON serializes objects with encoding/json.
type JSON struct{}

func (JSON) Serialize(obj any) ([]byte, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return b, nil
}

func (JSON) Extension() string { return "json" }

func (JSON) Deserialize(r io.Reader) (any, error) {
	var out any
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return out, nil
}

// Raw passes byte slices through unchanged.
type Raw struct {
	Ext string
}

func (r Raw) Serialize(obj any) ([]byte, error) {
	switch b := obj.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("%w: raw serializer needs []byte, got %T", domain.ErrValidation, obj)
}

func (r Raw) Extension() string { return r.Ext }

func (Raw) Deserialize(rd io.Reader) (any, error) {
	return io.ReadAll(rd)
}
