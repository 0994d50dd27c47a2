package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
)

const (
	DescriptionUnavailable = "Description not available - manual evaluation required"
	fakeFileJustification  = "File name suggests a false alarm"
)

var (
	fakeFileKeywords  = []string{"meme", "fake", "broma", "chiste", "test", "prueba", "joke", "funny"}
	fakeReplyKeywords = []string{"true", "fake", "joke", "falsa", "broma"}
)

// Result is an analysis plus whether it came from the fallback path.
type Result struct {
	Analysis model.Analysis
	Degraded bool
	Err      error
}

// ReportAnalysis is the subset persisted on a report.
func (r Result) ReportAnalysis() model.ReportAnalysis {
	return model.ReportAnalysis{
		ImageDescription: r.Analysis.ImageDescription,
		TriageLevel:      r.Analysis.TriageLevel,
		Justification:    r.Analysis.Justification,
		IsFakeAlarm:      r.Analysis.IsFakeAlarm,
		Confidence:       r.Analysis.Confidence,
		Degraded:         r.Degraded,
	}
}

type FakeCheck struct {
	Fake     bool
	Degraded bool
}

type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Analyzer runs the analysis operations against a Provider.
type Analyzer struct {
	provider Provider
	timeout  time.Duration
	cache    *cache.Cache
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewAnalyzer(provider Provider, cfg Config, log *logger.Logger, m *metrics.Metrics) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Analyzer{
		provider: provider,
		timeout:  cfg.Timeout,
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:   log.With("analyzer"),
		metrics:  m,
	}
}

// FileNameSuggestsFake reports whether name contains a joke keyword.
func FileNameSuggestsFake(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range fakeFileKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// DegradedAnalysis is the fixed analysis used when the provider fails.
func DegradedAnalysis() model.Analysis {
	return model.Analysis{
		ImageDescription:  "Analysis error, manual evaluation required",
		TriageLevel:       model.TriageYellow,
		Justification:     "Automatic analysis not available",
		TriageAnswers:     model.DefaultTriageAnswers(),
		AccidentType:      model.AccidentOther,
		InjuredCount:      1,
		Confidence:        0,
		DetectedObjects:   []string{},
		MedicalIndicators: []string{},
	}
}

func (a *Analyzer) generate(ctx context.Context, op, prompt string, img *Image) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	text, err := a.provider.Generate(ctx, prompt, img)
	a.metrics.AILatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.AICalls.WithLabelValues(op, "error").Inc()
		a.logger.Warn("AI call failed", "operation", op, "provider", a.provider.Name(), "error", err.Error())
		return "", err
	}
	a.metrics.AICalls.WithLabelValues(op, "success").Inc()
	return text, nil
}

func cacheKey(op string, img *Image) string {
	return op + ":" + img.Hash()
}

// Analyze never fails: on any provider or decoding error it returns the
// degraded analysis with Degraded set. The file name heuristic is applied
// on every path.
func (a *Analyzer) Analyze(ctx context.Context, img *Image) Result {
	key := cacheKey("analyze", img)

	var res Result
	if cached, ok := a.cache.Get(key); ok {
		res = Result{Analysis: cached.(model.Analysis)}
	} else {
		res = a.analyze(ctx, img)
		if !res.Degraded {
			a.cache.SetDefault(key, res.Analysis)
		}
	}

	if FileNameSuggestsFake(img.FileName) {
		res.Analysis.IsFakeAlarm = true
		res.Analysis.TriageLevel = model.TriageGreen
		res.Analysis.Justification = fakeFileJustification
	}
	return res
}

func (a *Analyzer) analyze(ctx context.Context, img *Image) Result {
	text, err := a.generate(ctx, "analyze", emergencyAnalysisPrompt, img)
	if err != nil {
		return Result{Analysis: DegradedAnalysis(), Degraded: true, Err: err}
	}

	analysis, err := Decode(text)
	if err != nil {
		a.logger.Warn("Unparseable analysis reply", "error", err.Error())
		return Result{Analysis: DegradedAnalysis(), Degraded: true, Err: err}
	}
	return Result{Analysis: analysis}
}

// DetectFakeAlarm asks the model whether the image is a prank. It fails
// open: a provider error yields Fake=false with Degraded set.
func (a *Analyzer) DetectFakeAlarm(ctx context.Context, img *Image, description string) FakeCheck {
	key := cacheKey("fake", img)
	if description != "" {
		sum := sha256.Sum256([]byte(description))
		key += ":" + hex.EncodeToString(sum[:8])
	}
	if cached, ok := a.cache.Get(key); ok {
		return cached.(FakeCheck)
	}

	prompt := fakeAlarmPrompt
	if description != "" {
		prompt += "\nReporter description: " + description + "\n"
	}

	text, err := a.generate(ctx, "detect_fake", prompt, img)
	if err != nil {
		return FakeCheck{Degraded: true}
	}

	check := FakeCheck{Fake: fakeVerdict(text)}
	a.cache.SetDefault(key, check)
	return check
}

// fakeVerdict trusts a leading true/false token. Without one it falls back to
// scanning for joke keywords.
func fakeVerdict(reply string) bool {
	fields := strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) > 0 {
		switch fields[0] {
		case "true", "verdadero", "si", "sí", "yes":
			return true
		case "false", "falso", "no":
			return false
		}
	}
	w := make(words, len(fields))
	for _, f := range fields {
		w[f] = struct{}{}
	}
	return w.hasAny(fakeReplyKeywords...)
}

// GenerateMedicalDescription returns a short clinical description of the
// image, or DescriptionUnavailable.
func (a *Analyzer) GenerateMedicalDescription(ctx context.Context, img *Image) string {
	key := cacheKey("describe", img)
	if cached, ok := a.cache.Get(key); ok {
		return cached.(string)
	}

	text, err := a.generate(ctx, "describe", medicalDescriptionPrompt, img)
	if err != nil {
		return DescriptionUnavailable
	}
	desc := strings.Trim(strings.TrimSpace(text), `"`)
	if desc == "" {
		return DescriptionUnavailable
	}
	a.cache.SetDefault(key, desc)
	return desc
}

// Ping checks that the provider answers a trivial prompt.
func (a *Analyzer) Ping(ctx context.Context) (string, error) {
	text, err := a.generate(ctx, "ping", pingPrompt, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

type words map[string]struct{}

func (w words) hasAny(candidates ...string) bool {
	for _, c := range candidates {
		if _, ok := w[c]; ok {
			return true
		}
	}
	return false
}
