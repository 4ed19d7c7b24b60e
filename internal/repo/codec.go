package repo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Helpers for moving values between domain structs, change-log JSON, and
// SQL parameters. Change-log values round-trip through encoding/json, so
// every number decodes as float64 and every timestamp as an RFC 3339 string.

func nullUUIDToText(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func encodeNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeToText(*t)
}

func encodeNullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func equalNullTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalNullUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

func asTime(v any) (time.Time, error) {
	s, err := asString(v)
	if err != nil {
		return time.Time{}, err
	}
	return timeFromText(s)
}

func asNullTime(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	t, err := asTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func asNullUUID(v any) (*uuid.UUID, error) {
	if v == nil {
		return nil, nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
