package seostats

import (
	"errors"
	"fmt"
	"unicode"

	"seostats.local/internal/mozscape"
)

const (
	MaxTargetLen = 2048
	// MaxBatch 单次批量查询的目标上限
	MaxBatch = 10
)

var (
	ErrInvalidTarget = errors.New("invalid target")
	ErrBatchTooLarge = errors.New("batch too large")
	ErrNoColumns     = errors.New("no columns selected")
)

// ValidateTarget 只做形状检查：非空、不超长、不含空白和控制字符。
// 是不是合法域名由上游判断。
func ValidateTarget(target string) error {
	if target == "" || len(target) > MaxTargetLen {
		return ErrInvalidTarget
	}
	for _, r := range target {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidTarget
		}
	}
	return nil
}

func ValidateBatch(targets []string) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidTarget)
	}
	if len(targets) > MaxBatch {
		return ErrBatchTooLarge
	}
	for i, t := range targets {
		if err := ValidateTarget(t); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
	}
	return nil
}

func validate(target mozscape.Target) error {
	switch t := target.(type) {
	case mozscape.SingleTarget:
		return ValidateTarget(string(t))
	case mozscape.BatchTargets:
		return ValidateBatch(t)
	default:
		return ErrInvalidTarget
	}
}
