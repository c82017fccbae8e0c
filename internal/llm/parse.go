package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/rs/zerolog/log"
)

// LotResponse is the structured answer to a lot analysis prompt.
type LotResponse struct {
	Lots    []lot.Lot `json:"lots"`
	Summary string    `json:"summary"`
	// Rejected counts lots that were present but failed validation.
	Rejected int `json:"-"`
}

// serial placeholders models emit instead of null
var serialPlaceholders = map[string]bool{
	"":        true,
	"null":    true,
	"none":    true,
	"n a":     true,
	"na":      true,
	"unknown": true,
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting. Returns the extracted JSON string or an error.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

// ParseLots parses a model answer into lots. An error means the answer as a
// whole is unusable. Individual lots missing a title or description are
// dropped and counted in Rejected.
func ParseLots(text string) (*LotResponse, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var raw LotResponse
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, jsonStr)
	}

	resp := &LotResponse{Summary: strings.TrimSpace(raw.Summary)}
	for i := range raw.Lots {
		l := raw.Lots[i]
		l.Title = strings.TrimSpace(l.Title)
		l.Description = strings.TrimSpace(l.Description)
		l.SerialNoOrLabel = clearPlaceholder(l.SerialNoOrLabel)
		l.SerialNumber = clearPlaceholder(l.SerialNumber)
		// image_urls are only ever filled by the assembler
		l.ImageURLs = nil
		l.ExtraImageURLs = nil
		if err := l.Validate(); err != nil {
			log.Warn().Err(err).Int("position", i).Str("title", l.Title).Msg("dropping invalid lot from model response")
			resp.Rejected++
			continue
		}
		resp.Lots = append(resp.Lots, l)
	}
	return resp, nil
}

func clearPlaceholder(s *string) *string {
	if s == nil || serialPlaceholders[lot.Normalize(*s)] {
		return nil
	}
	return s
}
