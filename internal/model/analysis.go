package model

import (
	"database/sql/driver"
	"strings"
)

type TriageLevel string

const (
	TriageRed    TriageLevel = "Red"
	TriageYellow TriageLevel = "Yellow"
	TriageGreen  TriageLevel = "Green"
)

// ParseTriageLevel accepts English and Spanish names in any case.
func ParseTriageLevel(s string) (TriageLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "rojo":
		return TriageRed, true
	case "yellow", "amarillo":
		return TriageYellow, true
	case "green", "verde":
		return TriageGreen, true
	}
	return "", false
}

type Answer string

const (
	Yes Answer = "Yes"
	No  Answer = "No"
)

// ParseAnswer accepts yes/no in English and Spanish, with or without accent.
func ParseAnswer(s string) (Answer, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "sí", "si", "true":
		return Yes, true
	case "no", "false":
		return No, true
	}
	return "", false
}

type TriageAnswers struct {
	Conscious Answer `json:"conscious"`
	Breathing Answer `json:"breathing"`
	Movement  Answer `json:"movement"`
	Bleeding  Answer `json:"bleeding"`
}

// DefaultTriageAnswers assumes a responsive, non-bleeding casualty.
func DefaultTriageAnswers() TriageAnswers {
	return TriageAnswers{Conscious: Yes, Breathing: Yes, Movement: Yes, Bleeding: No}
}

func (t TriageAnswers) Value() (driver.Value, error) { return jsonValue(t) }
func (t *TriageAnswers) Scan(src interface{}) error  { return scanJSON(src, t) }

type AccidentType string

const (
	AccidentVehicleCollision AccidentType = "Vehicle Collision"
	AccidentFall             AccidentType = "Fall"
	AccidentBurn             AccidentType = "Burn"
	AccidentPedestrianHit    AccidentType = "Pedestrian Hit"
	AccidentOther            AccidentType = "Other"
)

var accidentAliases = map[string]AccidentType{
	"vehicle collision":   AccidentVehicleCollision,
	"choque de vehículos": AccidentVehicleCollision,
	"choque de vehiculos": AccidentVehicleCollision,
	"fall":                AccidentFall,
	"caída":               AccidentFall,
	"caida":               AccidentFall,
	"burn":                AccidentBurn,
	"quemadura":           AccidentBurn,
	"pedestrian hit":      AccidentPedestrianHit,
	"atropello":           AccidentPedestrianHit,
	"other":               AccidentOther,
	"otro":                AccidentOther,
}

func ParseAccidentType(s string) (AccidentType, bool) {
	t, ok := accidentAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// Analysis is the normalized result of an image analysis. Every field holds a
// value from its closed set regardless of what the model replied.
type Analysis struct {
	ImageDescription  string        `json:"image_description"`
	TriageLevel       TriageLevel   `json:"triage_level"`
	Justification     string        `json:"justification"`
	IsFakeAlarm       bool          `json:"is_fake_alarm"`
	TriageAnswers     TriageAnswers `json:"triage_answers"`
	AccidentType      AccidentType  `json:"accident_type"`
	InjuredCount      int           `json:"injured_count"`
	Confidence        int           `json:"confidence"`
	DetectedObjects   []string      `json:"detected_objects"`
	MedicalIndicators []string      `json:"medical_indicators"`
}

// ReportAnalysis is the part of an Analysis kept on a report.
type ReportAnalysis struct {
	ImageDescription string      `json:"image_description"`
	TriageLevel      TriageLevel `json:"triage_level"`
	Justification    string      `json:"justification"`
	IsFakeAlarm      bool        `json:"is_fake_alarm"`
	Confidence       int         `json:"confidence"`
	Degraded         bool        `json:"degraded"`
}

func (a ReportAnalysis) Value() (driver.Value, error) { return jsonValue(a) }
func (a *ReportAnalysis) Scan(src interface{}) error  { return scanJSON(src, a) }
