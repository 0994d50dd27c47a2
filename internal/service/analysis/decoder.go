package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jwalitptl/dispatch-api/internal/model"
)

const (
	defaultJustification = "Automatic image analysis"
	textReplyConfidence  = 50
	maxInjured           = 20
)

// Decode extracts the first JSON object from a model reply and normalizes it.
// A reply without any object yields a low-confidence analysis that keeps the
// raw text as the description. An object that does not parse is an error.
func Decode(text string) (model.Analysis, error) {
	obj, ok := extractObject(text)
	if !ok {
		a := Normalize(nil)
		a.ImageDescription = strings.TrimSpace(text)
		a.Confidence = textReplyConfidence
		return a, nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return model.Analysis{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return Normalize(raw), nil
}

// extractObject returns the first balanced {...} in s, skipping braces
// inside JSON strings.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	// unbalanced: hand the tail to the JSON parser so it reports the error
	return s[start:], true
}

// Normalize maps a loosely typed reply onto an Analysis. Each field falls
// back to its default when missing or out of range.
func Normalize(raw map[string]interface{}) model.Analysis {
	a := model.Analysis{
		ImageDescription:  stringField(raw, "imageDescription", "image_description"),
		TriageLevel:       model.TriageYellow,
		Justification:     stringField(raw, "justification"),
		IsFakeAlarm:       boolField(raw, "isFakeAlarm", "is_fake_alarm"),
		TriageAnswers:     normalizeAnswers(field(raw, "triageAnswers", "triage_answers")),
		AccidentType:      model.AccidentOther,
		InjuredCount:      clamp(leadingInt(field(raw, "injuredCount", "injured_count"), 1), 1, maxInjured),
		Confidence:        clamp(leadingInt(field(raw, "confidence"), 0), 0, 100),
		DetectedObjects:   stringList(field(raw, "detectedObjects", "detected_objects")),
		MedicalIndicators: stringList(field(raw, "medicalIndicators", "medical_indicators")),
	}

	if a.ImageDescription == "" {
		a.ImageDescription = defaultJustification
	}
	if a.Justification == "" {
		a.Justification = defaultJustification
	}
	if lvl, ok := model.ParseTriageLevel(stringField(raw, "triageLevel", "triage_level")); ok {
		a.TriageLevel = lvl
	}
	if t, ok := model.ParseAccidentType(stringField(raw, "accidentType", "accident_type")); ok {
		a.AccidentType = t
	}
	return a
}

func normalizeAnswers(v interface{}) model.TriageAnswers {
	answers := model.DefaultTriageAnswers()
	m, ok := v.(map[string]interface{})
	if !ok {
		return answers
	}

	// conscious, breathing and movement only flip on an explicit No;
	// bleeding only flips on an explicit Yes.
	if ans, ok := model.ParseAnswer(stringField(m, "conscious")); ok && ans == model.No {
		answers.Conscious = model.No
	}
	if ans, ok := model.ParseAnswer(stringField(m, "breathing")); ok && ans == model.No {
		answers.Breathing = model.No
	}
	if ans, ok := model.ParseAnswer(stringField(m, "movement")); ok && ans == model.No {
		answers.Movement = model.No
	}
	if ans, ok := model.ParseAnswer(stringField(m, "bleeding")); ok && ans == model.Yes {
		answers.Bleeding = model.Yes
	}
	return answers
}

func field(raw map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(raw map[string]interface{}, keys ...string) string {
	switch v := field(raw, keys...).(type) {
	case string:
		return strings.TrimSpace(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func boolField(raw map[string]interface{}, keys ...string) bool {
	switch v := field(raw, keys...).(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "yes" || s == "sí" || s == "si"
	case float64:
		return v != 0
	}
	return false
}

// leadingInt reads an integer the way a lenient parser would: numbers are
// truncated and strings contribute their leading digits ("3 people" is 3).
func leadingInt(v interface{}, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		s := strings.TrimSpace(n)
		end := 0
		if end < len(s) && (s[end] == '-' || s[end] == '+') {
			end++
		}
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		i, err := strconv.Atoi(s[:end])
		if err != nil {
			return def
		}
		return i
	}
	return def
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
