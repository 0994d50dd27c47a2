package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/dispatch-api/internal/model"
)

func TestDecode_FencedJSON(t *testing.T) {
	reply := "Here is the analysis:\n```json\n" + `{
  "imageDescription": "Two cars collided at an intersection {front damage}",
  "triageLevel": "Rojo",
  "justification": "Driver unconscious",
  "isFakeAlarm": false,
  "triageAnswers": {"conscious": "No", "breathing": "Sí", "movement": "No", "bleeding": "Sí"},
  "accidentType": "Choque de Vehículos",
  "injuredCount": "3 personas",
  "confidence": 92.6,
  "detectedObjects": ["car", "glass"],
  "medicalIndicators": ["unconscious"]
}` + "\n```\nTrailing note {not json}"

	a, err := Decode(reply)
	require.NoError(t, err)

	assert.Equal(t, "Two cars collided at an intersection {front damage}", a.ImageDescription)
	assert.Equal(t, model.TriageRed, a.TriageLevel)
	assert.Equal(t, model.AccidentVehicleCollision, a.AccidentType)
	assert.Equal(t, 3, a.InjuredCount)
	assert.Equal(t, 92, a.Confidence)
	assert.Equal(t, model.TriageAnswers{Conscious: model.No, Breathing: model.Yes, Movement: model.No, Bleeding: model.Yes}, a.TriageAnswers)
	assert.Equal(t, []string{"car", "glass"}, a.DetectedObjects)
	assert.False(t, a.IsFakeAlarm)
}

func TestDecode_PlainText(t *testing.T) {
	a, err := Decode("  A person lying on the road.  ")
	require.NoError(t, err)

	assert.Equal(t, "A person lying on the road.", a.ImageDescription)
	assert.Equal(t, model.TriageYellow, a.TriageLevel)
	assert.Equal(t, 50, a.Confidence)
	assert.Equal(t, 1, a.InjuredCount)
	assert.Equal(t, model.AccidentOther, a.AccidentType)
	assert.Equal(t, model.DefaultTriageAnswers(), a.TriageAnswers)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(`{"triageLevel": "Red", `)
	assert.ErrorIs(t, err, ErrMalformedReply)
}

func TestNormalize_Defaults(t *testing.T) {
	tests := []struct {
		name  string
		raw   map[string]interface{}
		check func(t *testing.T, a model.Analysis)
	}{
		{
			name: "empty",
			raw:  map[string]interface{}{},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.TriageYellow, a.TriageLevel)
				assert.Equal(t, 1, a.InjuredCount)
				assert.Equal(t, 0, a.Confidence)
				assert.Equal(t, []string{}, a.DetectedObjects)
				assert.Equal(t, []string{}, a.MedicalIndicators)
				assert.NotEmpty(t, a.Justification)
			},
		},
		{
			name: "out of range",
			raw: map[string]interface{}{
				"triageLevel":  "Purple",
				"accidentType": "Meteor",
				"injuredCount": float64(57),
				"confidence":   float64(140),
			},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.TriageYellow, a.TriageLevel)
				assert.Equal(t, model.AccidentOther, a.AccidentType)
				assert.Equal(t, 20, a.InjuredCount)
				assert.Equal(t, 100, a.Confidence)
			},
		},
		{
			name: "below range and unparseable",
			raw: map[string]interface{}{
				"injuredCount": float64(-2),
				"confidence":   "high",
			},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, 1, a.InjuredCount)
				assert.Equal(t, 0, a.Confidence)
			},
		},
		{
			name: "answers only flip on explicit values",
			raw: map[string]interface{}{
				"triageAnswers": map[string]interface{}{"conscious": "maybe", "bleeding": "unclear"},
			},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.DefaultTriageAnswers(), a.TriageAnswers)
			},
		},
		{
			name: "case insensitive triage and english accident",
			raw:  map[string]interface{}{"triageLevel": "green", "accidentType": "burn", "isFakeAlarm": "true"},
			check: func(t *testing.T, a model.Analysis) {
				assert.Equal(t, model.TriageGreen, a.TriageLevel)
				assert.Equal(t, model.AccidentBurn, a.AccidentType)
				assert.True(t, a.IsFakeAlarm)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Normalize(tt.raw))
		})
	}
}
