package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/model"
)

// Analysis is the parsed scoring payload. Raw keeps the JSON object verbatim.
type Analysis struct {
	TeacherSpeechRate    decimal.Decimal
	StudentParticipation decimal.Decimal
	InteractionQuality   decimal.Decimal
	ContentStructure     decimal.Decimal
	OverallScore         decimal.Decimal
	Suggestions          []string
	Raw                  json.RawMessage
}

// ParseSegments keeps the lines shaped "[role] text" and drops the rest.
func ParseSegments(text string) model.Segments {
	segments := model.Segments{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "[") {
			continue
		}
		end := strings.Index(line, "]")
		if end < 0 {
			continue
		}
		body := strings.TrimSpace(line[end+1:])
		if body == "" {
			continue
		}
		segments = append(segments, model.Segment{Role: line[1:end], Text: body})
	}
	return segments
}

// ExtractJSON returns the first balanced, valid JSON object embedded in text.
func ExtractJSON(text string) ([]byte, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedEnd(text, start); end > 0 {
			candidate := []byte(text[start:end])
			if json.Valid(candidate) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, fmt.Errorf("%w: no JSON object in reply", apperr.ErrAnalysisParse)
}

// balancedEnd returns the index after the brace closing text[start], or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

type analysisPayload struct {
	TeacherSpeechRate    *decimal.Decimal `json:"teacher_speech_rate"`
	StudentParticipation *decimal.Decimal `json:"student_participation"`
	InteractionQuality   *decimal.Decimal `json:"interaction_quality"`
	ContentStructure     *decimal.Decimal `json:"content_structure"`
	OverallScore         *decimal.Decimal `json:"overall_score"`
	Suggestions          []string         `json:"suggestions"`
}

// ParseAnalysis extracts and decodes the scoring JSON. All five scores are required.
func ParseAnalysis(text string) (*Analysis, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var p analysisPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrAnalysisParse, err)
	}

	scores := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"teacher_speech_rate", p.TeacherSpeechRate},
		{"student_participation", p.StudentParticipation},
		{"interaction_quality", p.InteractionQuality},
		{"content_structure", p.ContentStructure},
		{"overall_score", p.OverallScore},
	}
	for _, s := range scores {
		if s.value == nil {
			return nil, fmt.Errorf("%w: missing %s", apperr.ErrAnalysisParse, s.name)
		}
	}

	suggestions := p.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}

	return &Analysis{
		TeacherSpeechRate:    *p.TeacherSpeechRate,
		StudentParticipation: *p.StudentParticipation,
		InteractionQuality:   *p.InteractionQuality,
		ContentStructure:     *p.ContentStructure,
		OverallScore:         *p.OverallScore,
		Suggestions:          suggestions,
		Raw:                  json.RawMessage(raw),
	}, nil
}
