package types

import (
	"strings"

	"github.com/wyfcoding/fdpricer/xerrors"
)

// OptionType 定义期权类型。
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// ParseOptionType 不区分大小写地解析期权类型，仅接受 "call" 与 "put"。
func ParseOptionType(s string) (OptionType, error) {
	switch OptionType(strings.ToLower(strings.TrimSpace(s))) {
	case OptionTypeCall:
		return OptionTypeCall, nil
	case OptionTypePut:
		return OptionTypePut, nil
	default:
		return "", xerrors.Derive(xerrors.ErrInvalidOptionType, "got %q", s)
	}
}

// IsCall 是否为看涨期权。
func (t OptionType) IsCall() bool { return t == OptionTypeCall }

// Payoff 计算单点的到期收益。
func (t OptionType) Payoff(s, k float64) float64 {
	if t == OptionTypeCall {
		return max(s-k, 0)
	}
	return max(k-s, 0)
}

// ExerciseStyle 定义行权方式。
type ExerciseStyle string

const (
	StyleEuropean ExerciseStyle = "european"
	StyleAmerican ExerciseStyle = "american"
)

// ParseExerciseStyle 解析行权方式。
func ParseExerciseStyle(s string) (ExerciseStyle, error) {
	switch ExerciseStyle(strings.ToLower(strings.TrimSpace(s))) {
	case StyleEuropean:
		return StyleEuropean, nil
	case StyleAmerican:
		return StyleAmerican, nil
	default:
		return "", xerrors.Derive(xerrors.ErrInvalidInput, "unknown exercise style %q", s)
	}
}
