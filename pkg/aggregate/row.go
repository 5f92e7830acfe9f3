package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

// ErrMalformedRow is returned by NormalizeRow for values it cannot read.
var ErrMalformedRow = errors.New("malformed aggregate row")

// Row is one group of an aggregate result.
type Row struct {
	Key     string
	Devices int64
}

// Backend runs aggregate queries against the event log.
type Backend interface {
	Aggregate(ctx context.Context, q Query) ([]Row, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, q Query) ([]Row, error)

func (f BackendFunc) Aggregate(ctx context.Context, q Query) ([]Row, error) {
	return f(ctx, q)
}

// NormalizeRow converts raw driver values into a Row. Date keys are
// rendered as YYYY-MM-DD whether the driver produced a time, a string or
// bytes.
func NormalizeRow(dim Dimension, key, devices any) (Row, error) {
	k, err := normalizeKey(dim, key)
	if err != nil {
		return Row{}, err
	}
	n, err := normalizeCount(devices)
	if err != nil {
		return Row{}, err
	}
	return Row{Key: k, Devices: n}, nil
}

func normalizeKey(dim Dimension, v any) (string, error) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	case time.Time:
		if dim != ByDate {
			return "", fmt.Errorf("%w: time key for %s", ErrMalformedRow, dim)
		}
		return string(heartbeat.DateOf(t)), nil
	case nil:
		s = ""
	default:
		return "", fmt.Errorf("%w: key of type %T", ErrMalformedRow, v)
	}

	if dim != ByDate {
		return s, nil
	}
	// Drivers may render DATE columns as full timestamps.
	if len(s) > len(heartbeat.DateLayout) {
		s = s[:len(heartbeat.DateLayout)]
	}
	d, err := heartbeat.ParseDate(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	return string(d), nil
}

func normalizeCount(v any) (int64, error) {
	var n int64
	switch t := v.(type) {
	case int64:
		n = t
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("%w: fractional count %v", ErrMalformedRow, t)
		}
		n = int64(t)
	case []byte:
		return normalizeCount(string(t))
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: count %q", ErrMalformedRow, t)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: count of type %T", ErrMalformedRow, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative count %d", ErrMalformedRow, n)
	}
	return n, nil
}
