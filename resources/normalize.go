package resources

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/civic-console/apiclient"
	apperrors "github.com/jrsteele09/civic-console/internal/errors"
)

// NormalizeList extracts the records of a list response. Accepted shapes are a
// bare array, {"data": [...]}, {"<resource>": [...]} and
// {"data": {"<resource>": [...]}}. Records without a non-empty string id and
// name are dropped.
func NormalizeList[T any](raw json.RawMessage, resource string) ([]T, error) {
	payload, err := apiclient.UnwrapData(raw)
	if err != nil {
		return nil, err
	}
	items, ok := listPayload(payload, resource)
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "NormalizeList %s: unrecognised response shape", resource)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(items, &records); err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "NormalizeList %s: %v", resource, err)
	}

	out := make([]T, 0, len(records))
	for i, rec := range records {
		if !validRecord(rec) {
			log.Debug().Str("resource", resource).Int("index", i).Msg("dropping record without id or name")
			continue
		}
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			log.Debug().Err(err).Str("resource", resource).Int("index", i).Msg("dropping undecodable record")
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// NormalizeRecord extracts a single record, bare or nested under "data" and/or
// the singular resource name.
func NormalizeRecord[T any](raw json.RawMessage, singular string) (T, error) {
	var zero T
	payload, err := apiclient.UnwrapData(raw)
	if err != nil {
		return zero, err
	}
	payload = bytes.TrimSpace(payload)
	if !isObject(payload) {
		return zero, errors.Wrapf(apperrors.ErrInvalidResponse, "NormalizeRecord %s: not an object", singular)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return zero, errors.Wrapf(apperrors.ErrInvalidResponse, "NormalizeRecord %s: %v", singular, err)
	}
	if nested, ok := obj[singular]; ok && isObject(nested) {
		payload = nested
	}
	if !validRecord(payload) {
		return zero, errors.Wrapf(apperrors.ErrInvalidResponse, "NormalizeRecord %s: missing id or name", singular)
	}

	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return zero, errors.Wrapf(apperrors.ErrInvalidResponse, "NormalizeRecord %s: %v", singular, err)
	}
	return v, nil
}

func listPayload(payload json.RawMessage, resource string) (json.RawMessage, bool) {
	payload = bytes.TrimSpace(payload)
	if isArray(payload) {
		return payload, true
	}
	if !isObject(payload) {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, false
	}
	if items, ok := obj[resource]; ok && isArray(items) {
		return bytes.TrimSpace(items), true
	}
	return nil, false
}

func validRecord(raw json.RawMessage) bool {
	var fields struct {
		ID   json.RawMessage `json:"id"`
		Name json.RawMessage `json:"name"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	return nonEmptyString(fields.ID) && nonEmptyString(fields.Name)
}

func nonEmptyString(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return strings.TrimSpace(s) != ""
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
