package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingTitle is returned when a payload parses but carries no title
	ErrMissingTitle = errors.New("description payload has no title")
	// ErrUnparseablePayload is returned when a string payload does not encode JSON
	ErrUnparseablePayload = errors.New("description payload string is not JSON")
)

// GenerationResult is a description produced by the external service
type GenerationResult struct {
	Title            string `json:"title"`
	ShortDescription string `json:"short_description"`
	Content          string `json:"content"`
}

// Flatten renders the result as the plain text used for copy and export
func (r GenerationResult) Flatten() string {
	return fmt.Sprintf("Title:\n%s\n\nShort Description:\n%s\n\nKey Features:\n%s",
		r.Title, r.ShortDescription, r.Content)
}

// PayloadKind tells which shape a service response body arrived in
type PayloadKind int

const (
	PayloadObject PayloadKind = iota
	PayloadString
)

// DescriptionPayload is a raw service response body. The service answers either
// with the result object itself or with a JSON string that encodes it.
type DescriptionPayload struct {
	Kind PayloadKind
	Raw  json.RawMessage
}

// DecodePayload classifies a response body without interpreting its fields
func DecodePayload(body []byte) (DescriptionPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return DescriptionPayload{}, errors.New("empty response body")
	}
	if !json.Valid(trimmed) {
		return DescriptionPayload{}, errors.New("response body is not valid JSON")
	}

	kind := PayloadObject
	if trimmed[0] == '"' {
		kind = PayloadString
	}
	return DescriptionPayload{Kind: kind, Raw: json.RawMessage(trimmed)}, nil
}

// Normalize resolves the payload into a result. A string payload that does not
// hold JSON is unparseable; any other shape without a title is malformed.
func (p DescriptionPayload) Normalize() (*GenerationResult, error) {
	raw := []byte(p.Raw)
	if p.Kind == PayloadString {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseablePayload, err)
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 || !json.Valid(raw) {
			return nil, ErrUnparseablePayload
		}
	}

	var result GenerationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode description: %w", err)
	}
	if result.Title == "" {
		return nil, ErrMissingTitle
	}
	return &result, nil
}
