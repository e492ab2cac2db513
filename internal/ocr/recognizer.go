// Package ocr turns receipt images and PDFs into reading-ordered text lines
// using a vision model.
package ocr

import "github.com/zombor/receipt-lens/internal/extraction"

// Recognizer transcribes a receipt image into text lines.
type Recognizer interface {
	// Recognize returns the lines printed on the receipt, top to bottom.
	Recognize(imageData []byte, contentType string) ([]extraction.RawLine, error)
	// Close releases any resources held by the recognizer.
	Close() error
}

// transcriptionPrompt is shared by all vision model providers.
const transcriptionPrompt = `You are transcribing a printed retail receipt. Read every line of text exactly as printed, from top to bottom.

Return ONLY valid JSON in this exact format:
{
  "lines": [
    {"text": "INDOMARET", "box": {"x": 120, "y": 14, "width": 300, "height": 28}},
    {"text": "Indomie Goreng 3.500", "box": {"x": 20, "y": 210, "width": 460, "height": 22}}
  ]
}

Important:
- One entry per printed line, in reading order
- Copy text verbatim: do not translate, correct spelling, reformat numbers or currency symbols
- Keep the separators exactly as printed (for example "10.500,00" or "Rp 1.200")
- Include lines made only of dashes or symbols
- "box" is the line's bounding box in image pixels; omit it if you cannot tell
- Do not interpret, total or summarize anything
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
