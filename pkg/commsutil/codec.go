package commsutil

import (
	"encoding/json"
	"errors"
	"fmt"
)

const codecLogPrefix = "commsutil:codec"

// ErrEmptyPayload is returned when a COMMS message carries no data.
var ErrEmptyPayload = errors.New("empty payload")

// EncodePayload serializes an envelope or event for publishing.
func EncodePayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - encode %T: %w", codecLogPrefix, v, err)
	}
	return data, nil
}

// DecodePayload deserializes a received COMMS message into v. Unknown fields are ignored.
func DecodePayload(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s - decode into %T: %w", codecLogPrefix, v, err)
	}
	return nil
}
