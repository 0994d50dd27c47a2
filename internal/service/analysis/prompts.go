package analysis

const systemPrompt = "You are an emergency medicine assistant helping a dispatch centre triage incoming reports."

const emergencyAnalysisPrompt = `
You are an expert in medical emergency analysis. Analyse the attached image and reply in JSON with this structure:

{
  "imageDescription": "Detailed description of what the image shows",
  "triageLevel": "Red|Yellow|Green",
  "justification": "Why you assigned that triage level",
  "isFakeAlarm": true/false,
  "triageAnswers": {
    "conscious": "Yes|No",
    "breathing": "Yes|No",
    "movement": "Yes|No",
    "bleeding": "Yes|No"
  },
  "accidentType": "Vehicle Collision|Fall|Burn|Pedestrian Hit|Other",
  "injuredCount": number,
  "confidence": number_between_0_and_100,
  "detectedObjects": ["object1", "object2"],
  "medicalIndicators": ["indicator1", "indicator2"]
}

Guidance:
- Red: critical emergency requiring immediate attention
- Yellow: moderate emergency requiring prompt attention
- Green: minor emergency or false alarm
- False alarm: a joke, meme, social event and similar
- Confidence: based on image clarity and visible evidence
`

const fakeAlarmPrompt = `
Decide whether this image is a false alarm or a joke. Reply only with "true" for a false alarm or "false" for a real emergency.

False alarm indicators:
- Memes or jokes
- Social events (weddings, birthdays)
- Entertainment content
- Fashion or beauty
- Real estate
- Celebrities
- Tourist sights
- Food
- Drawings or art
- Text indicating a joke
`

const medicalDescriptionPrompt = `
As an emergency physician, analyse this image and write a concise, professional medical description useful to hospital staff.

Include:
- Type of emergency or accident
- Approximate number of people involved
- Apparent severity of injuries
- Relevant visible medical elements
- Any additional risk factors

Reply ONLY with the description, no JSON, in at most 2-3 sentences.

Example:
"Vehicle collision with 2 people involved. One person visibly unconscious on the ground with possible head trauma. Vehicle with moderate front-end damage."
`

const pingPrompt = `Reply only with "OK" if you can read this message.`
