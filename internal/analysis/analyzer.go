package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"callqa/internal/llm"
	"callqa/internal/transcription"
)

// Analyzer is the analysis port used by the call pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (*Analysis, error)
}

type Input struct {
	Segments []transcription.Segment
	FullText string
	Metadata Metadata
}

type Metadata struct {
	DurationSec *float64
	CallType    string
}

const (
	firstTemperature  = 0.2
	repairTemperature = 0.0
	schemaName        = "call_analysis"
)

// LLMAnalyzer scores a transcript with a chat model. Output that fails the
// schema gets exactly one repair attempt at a lower temperature.
type LLMAnalyzer struct {
	client llm.Client
	log    *slog.Logger
}

func NewLLMAnalyzer(client llm.Client, log *slog.Logger) *LLMAnalyzer {
	if log == nil {
		log = slog.Default()
	}
	return &LLMAnalyzer{client: client, log: log.With("component", "analysis")}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, in Input) (*Analysis, error) {
	user := userPrompt(in)

	content, err := a.complete(ctx, user, firstTemperature)
	if err != nil {
		return nil, err
	}
	res, firstErr := decodeContent(content)
	if firstErr == nil {
		return res, nil
	}
	a.log.Warn("analysis output rejected, retrying with repair prompt", "err", firstErr)

	content, err = a.complete(ctx, user+"\n\n"+fmt.Sprintf(repairInstruction, firstErr.Error()), repairTemperature)
	if err != nil {
		return nil, err
	}
	res, repairErr := decodeContent(content)
	if repairErr != nil {
		return nil, &SchemaError{First: firstErr, Repair: repairErr}
	}
	return res, nil
}

func (a *LLMAnalyzer) complete(ctx context.Context, user string, temperature float64) (string, error) {
	content, err := a.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        user,
		Temperature: temperature,
		Schema:      responseSchema,
		SchemaName:  schemaName,
	})
	if err != nil {
		return "", fmt.Errorf("analysis: llm: %w", err)
	}
	return content, nil
}

func decodeContent(content string) (*Analysis, error) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return nil, errors.New("analysis: response contained no json object")
	}
	return Decode([]byte(raw))
}
