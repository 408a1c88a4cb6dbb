package tools

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	workflow "github.com/intrafind/ihub-apps-sub010"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomInput defines the input parameters for the random tool
type RandomInput struct {
	Type    string   `mapstructure:"type"` // uuid, number, float, string, choice, boolean, hex
	Min     float64  `mapstructure:"min"`
	Max     float64  `mapstructure:"max"`
	Length  int      `mapstructure:"length"`
	Choices []string `mapstructure:"choices"`
	Count   int      `mapstructure:"count"`
	Charset string   `mapstructure:"charset"`
	Seed    uint64   `mapstructure:"seed"` // reproducible output when non-zero
}

// RandomTool generates random values. A single value is returned when count
// is one, otherwise a list.
type RandomTool struct{}

func NewRandomTool() workflow.Tool {
	return workflow.NewTypedTool[RandomInput, any](&RandomTool{})
}

func (t *RandomTool) Name() string {
	return "random"
}

func (t *RandomTool) Description() string {
	return "Generate random uuids, numbers, strings, booleans or choices"
}

func (t *RandomTool) Execute(ctx context.Context, params RandomInput) (any, error) {
	if params.Type == "" {
		params.Type = "uuid"
	}
	if params.Count <= 0 {
		params.Count = 1
	}
	var rng *rand.Rand
	if params.Seed != 0 {
		rng = rand.New(rand.NewPCG(params.Seed, params.Seed))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	values := make([]any, 0, params.Count)
	for i := 0; i < params.Count; i++ {
		value, err := t.generate(rng, params)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if params.Count == 1 {
		return values[0], nil
	}
	return values, nil
}

func (t *RandomTool) generate(rng *rand.Rand, params RandomInput) (any, error) {
	switch strings.ToLower(params.Type) {
	case "uuid", "guid":
		return uuid.NewString(), nil
	case "number", "int", "integer":
		lo, hi := int(params.Min), int(params.Max)
		if hi <= lo {
			hi = lo + 100
		}
		return lo + rng.IntN(hi-lo+1), nil
	case "float", "decimal":
		lo, hi := params.Min, params.Max
		if hi <= lo {
			hi = lo + 1
		}
		return lo + rng.Float64()*(hi-lo), nil
	case "string", "text", "alphanumeric":
		charset := params.Charset
		if charset == "" {
			charset = alphanumeric
		}
		return randomString(rng, params.Length, 10, charset), nil
	case "hex":
		return randomString(rng, params.Length, 8, "0123456789abcdef"), nil
	case "choice", "select":
		if len(params.Choices) == 0 {
			return nil, fmt.Errorf("choices cannot be empty for choice type")
		}
		return params.Choices[rng.IntN(len(params.Choices))], nil
	case "boolean", "bool":
		return rng.IntN(2) == 1, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", params.Type)
	}
}

func randomString(rng *rand.Rand, length, fallback int, charset string) string {
	if length <= 0 {
		length = fallback
	}
	chars := []rune(charset)
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteRune(chars[rng.IntN(len(chars))])
	}
	return b.String()
}
