package join

import (
	"fmt"
	"math"
)

type WaitMode string

const (
	WaitAll       WaitMode = "ALL"
	WaitAny       WaitMode = "ANY"
	WaitThreshold WaitMode = "THRESHOLD"
)

type MergeStrategy string

const (
	PickFirst MergeStrategy = "PICK_FIRST"
	PickLast  MergeStrategy = "PICK_LAST"
)

// LateArrival decides what an arrival for an already fired barrier does.
type LateArrival string

const (
	LateDrop  LateArrival = "DROP"
	LateRenew LateArrival = "RENEW"
	LateError LateArrival = "ERROR"
)

type Config struct {
	Await         []string
	WaitMode      WaitMode
	Threshold     int
	MergeStrategy MergeStrategy
	LateArrival   LateArrival
	DeepMerge     bool
}

func ParseConfig(config map[string]any) (Config, error) {
	parsed := Config{
		WaitMode:      WaitAll,
		MergeStrategy: PickLast,
		LateArrival:   LateDrop,
	}

	switch await := config["await"].(type) {
	case []string:
		parsed.Await = append(parsed.Await, await...)
	case []any:
		for _, raw := range await {
			key, ok := raw.(string)
			if !ok || key == "" {
				return Config{}, fmt.Errorf("await entries must be node ids, got %v", raw)
			}

			parsed.Await = append(parsed.Await, key)
		}
	case nil:
	default:
		return Config{}, fmt.Errorf("await must be a list of node ids, got %T", await)
	}

	if len(parsed.Await) == 0 {
		return Config{}, fmt.Errorf("await must name at least one node")
	}

	if mode, ok := config["waitMode"].(string); ok && mode != "" {
		parsed.WaitMode = WaitMode(mode)
	}

	switch parsed.WaitMode {
	case WaitAll, WaitAny:
	case WaitThreshold:
		threshold, err := intOf(config["threshold"])
		if err != nil {
			return Config{}, fmt.Errorf("threshold: %w", err)
		}

		if threshold < 1 || threshold > len(parsed.Await) {
			return Config{}, fmt.Errorf("threshold must be between 1 and %d, got %d", len(parsed.Await), threshold)
		}

		parsed.Threshold = threshold
	default:
		return Config{}, fmt.Errorf("unsupported wait mode %q", parsed.WaitMode)
	}

	if strategy, ok := config["mergeStrategy"].(string); ok && strategy != "" {
		parsed.MergeStrategy = MergeStrategy(strategy)
		if parsed.MergeStrategy != PickFirst && parsed.MergeStrategy != PickLast {
			return Config{}, fmt.Errorf("unsupported merge strategy %q", strategy)
		}
	}

	if late, ok := config["lateArrival"].(string); ok && late != "" {
		parsed.LateArrival = LateArrival(late)
		if parsed.LateArrival != LateDrop && parsed.LateArrival != LateRenew && parsed.LateArrival != LateError {
			return Config{}, fmt.Errorf("unsupported late arrival policy %q", late)
		}
	}

	switch deep := config["deepMerge"].(type) {
	case bool:
		parsed.DeepMerge = deep
	case nil:
	default:
		return Config{}, fmt.Errorf("deepMerge must be a boolean, got %T", deep)
	}

	return parsed, nil
}

// Satisfied reports whether the distinct seen keys release the barrier.
func (c Config) Satisfied(seen map[string]bool) bool {
	count := 0

	for _, key := range c.Await {
		if seen[key] {
			count++
		}
	}

	switch c.WaitMode {
	case WaitAny:
		return count >= 1
	case WaitThreshold:
		return count >= c.Threshold
	default:
		return count == len(c.Await)
	}
}

func intOf(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}

		return int(v), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", value)
	}
}
