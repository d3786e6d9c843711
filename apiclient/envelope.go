package apiclient

import (
	"bytes"
	"encoding/json"
)

// Envelope is the standard response wrapper: {success, data, message}.
type Envelope struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// UnwrapData returns the "data" member of an enveloped body, or the body itself
// when it isn't enveloped. An envelope with success=false is an error carrying
// the server's message.
func UnwrapData(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return raw, nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Op: "decode envelope", Kind: KindInvalidResponse, Err: err}
	}
	if env.Success != nil && !*env.Success {
		return nil, &Error{Op: "api reported failure", Kind: KindClient, Message: env.Message}
	}
	if len(env.Data) > 0 {
		return env.Data, nil
	}
	return raw, nil
}

func messageFrom(raw []byte) string {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return env.Message
	}
	var alt struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &alt); err == nil {
		return alt.Error
	}
	return ""
}
