package httpx

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
)

// OptionalUUID tells a missing JSON key apart from an explicit null.
// Present is false when the key was absent; ID is nil for null or "".
type OptionalUUID struct {
	Present bool
	ID      *uuid.UUID
}

func (o *OptionalUUID) UnmarshalJSON(b []byte) error {
	o.Present = true
	o.ID = nil
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return err
	}
	o.ID = &id
	return nil
}
