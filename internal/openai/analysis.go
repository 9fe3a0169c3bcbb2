package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAnalysis is returned when the model's analysis output is not the expected JSON.
var ErrInvalidAnalysis = errors.New("openai: analysis response is not valid JSON")

// ExtractedFeatureRequest is one product request the model found in a transcript.
type ExtractedFeatureRequest struct {
	Request  string `json:"request"`
	Context  string `json:"context"`  // the conversation sentences said around the request
	Priority string `json:"priority"` // High, Medium, or Low based on customer emphasis
}

// CallAnalysis is the structured output of analyzing one call transcript.
type CallAnalysis struct {
	Summary         string                    `json:"summary"`
	FeatureRequests []ExtractedFeatureRequest `json:"feature_requests"`
	Sentiment       string                    `json:"sentiment"`
}

const analysisSystemPrompt = `You are an analyst reviewing sales call transcripts. Respond with JSON only, no prose and no markdown fences.`

const analysisPromptTemplate = `Analyze this sales call transcript and provide:
1. A concise summary (2-3 sentences) of what was discussed.
2. Any feature requests or product needs the customer raised, each with the
   supporting quote from the transcript and a priority (High, Medium, or Low)
   based on how strongly the customer emphasized it.
3. The customer's overall sentiment: positive, neutral, or negative.

Respond with a JSON object of this exact shape:
{"summary": "...", "feature_requests": [{"request": "...", "context": "...", "priority": "..."}], "sentiment": "..."}

Transcript:
%s`

// AnalyzeTranscript asks the chat model for a summary, feature requests, and
// sentiment for one transcript. Uses temperature 0 for reproducible output.
func (c *Client) AnalyzeTranscript(ctx context.Context, transcript string) (*CallAnalysis, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyInput
	}

	raw, err := c.Complete(ctx, analysisSystemPrompt, fmt.Sprintf(analysisPromptTemplate, transcript), 0)
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		return nil, err
	}

	return analysis, nil
}

// parseAnalysis decodes the model output, tolerating markdown code fences the
// model sometimes adds despite instructions.
func parseAnalysis(raw string) (*CallAnalysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var analysis CallAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAnalysis, err)
	}

	return &analysis, nil
}
