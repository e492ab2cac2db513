package ocr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/receipt-lens/internal/extraction"
)

type transcription struct {
	Lines []struct {
		Text string                  `json:"text"`
		Box  *extraction.BoundingBox `json:"box,omitempty"`
	} `json:"lines"`
}

// parseLinesJSON reads a model transcription into raw lines. Indexes follow
// the order the model returned.
func parseLinesJSON(text string) ([]extraction.RawLine, error) {
	text = trimFences(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var t transcription
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	lines := make([]extraction.RawLine, 0, len(t.Lines))
	for i, l := range t.Lines {
		box := l.Box
		if box != nil && box.Width <= 0 && box.Height <= 0 {
			box = nil
		}
		lines = append(lines, extraction.RawLine{
			Index: i,
			Text:  strings.TrimRight(l.Text, " \t\r\n"),
			Box:   box,
		})
	}
	return lines, nil
}

func trimFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
