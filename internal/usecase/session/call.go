package session

import (
	"context"
	"encoding/json"
	"fmt"

	"webdriver-bidi/internal/domain"
)

// Call sends cmd and decodes the result into T. A result that does not
// decode, or that fails T's Validate, is reported as
// domain.ErrUnexpectedResult.
func Call[T any](ctx context.Context, s *Session, cmd domain.Command) (*T, error) {
	return call[T](ctx, s, cmd, nil, true)
}

func call[T any](ctx context.Context, s *Session, cmd domain.Command, extra map[string]any, requireReady bool) (*T, error) {
	h, err := s.issue(ctx, cmd, extra, requireReady)
	if err != nil {
		return nil, err
	}
	return Await[T](ctx, h)
}

func decodeResult[T any](method string, raw json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", method, domain.ErrUnexpectedResult, err)
	}
	if v, ok := any(&out).(domain.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
