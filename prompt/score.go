package prompt

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/demml/potatohead-go/internal/util"
)

// ResponseType classifies what a prompt expects back.
type ResponseType string

const (
	// ResponseTypeNone expects free-form text.
	ResponseTypeNone ResponseType = "none"
	// ResponseTypeScore expects the well-known Score shape.
	ResponseTypeScore ResponseType = "score"
	// ResponseTypeStructured expects JSON constrained by a caller schema.
	ResponseTypeStructured ResponseType = "structured"
)

// OutputType declares the structured output a prompt requires. It supplies
// the JSON schema sent to the provider and the response classification
// recorded on the prompt.
type OutputType interface {
	ResponseType() ResponseType
	Schema() map[string]any
}

// ScoreOutput requests the well-known Score response.
type ScoreOutput struct{}

func (ScoreOutput) ResponseType() ResponseType { return ResponseTypeScore }

func (ScoreOutput) Schema() map[string]any { return util.CreateSchema(Score{}) }

// StructuredOutput derives a schema from a caller struct by reflection.
type StructuredOutput struct {
	Value any
}

func (o StructuredOutput) ResponseType() ResponseType { return ResponseTypeStructured }

func (o StructuredOutput) Schema() map[string]any { return util.CreateSchema(o.Value) }

// RawSchemaOutput carries a pre-built JSON schema.
type RawSchemaOutput struct {
	SchemaMap map[string]any
}

func (o RawSchemaOutput) ResponseType() ResponseType { return ResponseTypeStructured }

func (o RawSchemaOutput) Schema() map[string]any { return o.SchemaMap }

// Score is the well-known evaluation response: an integer grade with its
// justification.
type Score struct {
	Score  int    `json:"score" description:"The score assigned, from 1 to 5"`
	Reason string `json:"reason" description:"The reason for the score"`
}

// Validate checks the score is within the 1 to 5 range.
func (s Score) Validate() error {
	if s.Score < 1 || s.Score > 5 {
		return fmt.Errorf("score %d outside range [1,5]", s.Score)
	}
	return nil
}

// ParseScore decodes a Score from a response's structured data.
func ParseScore(resp ChatResponse) (Score, error) {
	data, ok := resp.StructuredData()
	if !ok {
		return Score{}, fmt.Errorf("response carries no structured data")
	}
	var s Score
	if err := json.Unmarshal(data, &s); err != nil {
		return Score{}, fmt.Errorf("decode score: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Score{}, err
	}
	return s, nil
}

// WeightedScore computes the probability-weighted mean of digit tokens. It
// reports false when no digit log probabilities are available, in which
// case callers fall back to the literal score.
func WeightedScore(logprobs []TokenLogProb) (float64, bool) {
	if len(logprobs) == 0 {
		return 0, false
	}
	var num, den float64
	for _, lp := range logprobs {
		digit := float64(lp.Token[0] - '0')
		p := math.Exp(lp.LogProb)
		num += digit * p
		den += p
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}
