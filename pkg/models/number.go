package models

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxWaitDelay is the longest a wait node may park a branch.
const MaxWaitDelay = 365 * 24 * time.Hour

// ParseNumber follows the usual string-to-number rules: surrounding whitespace is
// ignored, the empty string is zero, 0x/0b/0o prefixes select the base, Infinity is
// accepted and anything else unparsable is NaN. Event values and node config both go
// through it, so the same text means the same number on either side of a comparison.
func ParseNumber(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	switch raw {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	lower := strings.ToLower(raw)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.Contains(raw, "_") {
		return math.NaN()
	}

	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0b") || strings.HasPrefix(lower, "0o") {
		value, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return math.NaN()
		}

		return float64(value)
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}

	return value
}

// WaitMilliseconds is minutes*60000 + hours*3600000 of a wait node config. Malformed
// or negative values count as 0; the sum is not bounded.
func WaitMilliseconds(config map[string]string) float64 {
	ms := waitPart(config["minutes"])*60_000 + waitPart(config["hours"])*3_600_000
	if math.IsNaN(ms) || ms <= 0 {
		return 0
	}

	return ms
}

func waitPart(raw string) float64 {
	if strings.TrimSpace(raw) == "" {
		return 0
	}

	value := ParseNumber(raw)
	if math.IsNaN(value) || value < 0 {
		return 0
	}

	return value
}
