package problem

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
)

// System-wide fallback limits, applied when neither case, subtask nor problem
// sets one.
const (
	DefaultTimeNS      = int64(time.Second)
	DefaultMemoryBytes = int64(256 << 20)
)

var (
	timeRe   = regexp.MustCompile(`(?i)^([0-9.]+)\s*(ms|s)?$`)
	memoryRe = regexp.MustCompile(`(?i)^([0-9.]+)\s*(k|m|g)?$`)
)

// ParseTime normalizes a config time value to nanoseconds. Strings accept an
// optional ms/s unit and default to seconds; numbers pass through unchanged.
func ParseTime(v interface{}) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, appErr.New(appErr.RequiredFieldEmpty).WithMessage("time value is empty")
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		return int64(math.Round(t)), nil
	case string:
		m := timeRe.FindStringSubmatch(strings.TrimSpace(t))
		if m == nil {
			return 0, appErr.Newf(appErr.InvalidFormat, "invalid time %q", t)
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, appErr.Newf(appErr.InvalidFormat, "invalid time %q", t)
		}
		switch strings.ToLower(m[2]) {
		case "ms":
			return int64(math.Round(n * float64(time.Millisecond))), nil
		default: // "s" or no unit
			return int64(math.Round(n * float64(time.Second))), nil
		}
	default:
		return 0, appErr.Newf(appErr.InvalidValue, "invalid time value %v", v)
	}
}

// ParseMemory normalizes a config memory value to bytes. Strings accept an
// optional k/m/g IEC unit and default to bytes; numbers pass through
// unchanged.
func ParseMemory(v interface{}) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, appErr.New(appErr.RequiredFieldEmpty).WithMessage("memory value is empty")
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		return int64(math.Round(t)), nil
	case string:
		m := memoryRe.FindStringSubmatch(strings.TrimSpace(t))
		if m == nil {
			return 0, appErr.Newf(appErr.InvalidFormat, "invalid memory %q", t)
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, appErr.Newf(appErr.InvalidFormat, "invalid memory %q", t)
		}
		switch strings.ToLower(m[2]) {
		case "k":
			return int64(math.Round(n * (1 << 10))), nil
		case "m":
			return int64(math.Round(n * (1 << 20))), nil
		case "g":
			return int64(math.Round(n * (1 << 30))), nil
		default:
			return int64(math.Round(n)), nil
		}
	default:
		return 0, appErr.Newf(appErr.InvalidValue, "invalid memory value %v", v)
	}
}

// pickLimit resolves a limit through the case > subtask > problem > default
// chain. parse is ParseTime or ParseMemory.
func pickLimit(parse func(interface{}) (int64, error), fallback int64, values ...interface{}) (int64, error) {
	for _, v := range values {
		if v == nil {
			continue
		}
		n, err := parse(v)
		if err != nil {
			return 0, err
		}
		return n, nil
	}
	return fallback, nil
}

// firstValue returns the first non-nil of the two alias keys (time vs
// time_limit, memory vs memory_limit).
func firstValue(primary, alias interface{}) interface{} {
	if primary != nil {
		return primary
	}
	return alias
}
