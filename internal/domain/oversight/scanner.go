package oversight

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// clinicalPattern is one compiled expression with the label it reports under.
type clinicalPattern struct {
	label string
	re    *regexp.Regexp
}

// patternFamily groups patterns that share an alert type and a severity
// contribution. Families are evaluated in the order they are declared so
// severity escalation is reproducible.
type patternFamily struct {
	name      string
	alertType string
	severity  string
	patterns  []clinicalPattern
}

var patternFamilies = []patternFamily{
	{
		name:      "medical_advice",
		alertType: TypeMedicalAdvice,
		severity:  SeverityHigh,
		patterns: []clinicalPattern{
			{"direct_advice", regexp.MustCompile(`(?i)you should (take|stop|start|increase|decrease)\b[^.!?]*\b(medication|medicine|drug|pill|dose|dosage|this|your)`)},
			{"specific_dose", regexp.MustCompile(`(?i)take \d+\s*(mg|milligrams?|mcg|micrograms?|grams?|ml|tablets?|pills?|capsules?)`)},
			{"recommended_dose", regexp.MustCompile(`(?i)(recommended|correct|right|proper) (dose|dosage)`)},
		},
	},
	{
		name:      "diagnostic_statement",
		alertType: TypeDiagnosticStatement,
		severity:  SeverityMedium,
		patterns: []clinicalPattern{
			{"you_have_condition", regexp.MustCompile(`(?i)you (have|don'?t have|do not have|might have|may have|probably have|likely have)\b[^.!?]*\b(disease|condition|disorder|syndrome|infection|deficiency)`)},
			{"diagnosis_is", regexp.MustCompile(`(?i)(your|the) diagnosis is`)},
			{"suffering_from", regexp.MustCompile(`(?i)you (are|'re) suffering from`)},
		},
	},
	{
		name:      "treatment_recommendation",
		alertType: TypeTreatmentRecommendation,
		severity:  SeverityHigh,
		patterns: []clinicalPattern{
			{"you_need_treatment", regexp.MustCompile(`(?i)you (need|require)\b[^.!?]*\b(surgery|operation|therapy|treatment|procedure)`)},
			{"would_prescribe", regexp.MustCompile(`(?i)i would prescribe`)},
			{"best_treatment", regexp.MustCompile(`(?i)(the )?best treatment (is|would be|for)`)},
		},
	},
	{
		name:      "emergency_advice",
		alertType: TypeEmergencyAdvice,
		severity:  SeverityCritical,
		patterns: []clinicalPattern{
			{"call_911", regexp.MustCompile(`(?i)call 911`)},
			{"emergency_room_now", regexp.MustCompile(`(?i)go to (the |an? )?emergency room (now|immediately|right away)`)},
			{"call_ambulance", regexp.MustCompile(`(?i)call (an |the )?ambulance`)},
			{"seek_immediate_care", regexp.MustCompile(`(?i)seek (immediate|emergency|urgent) medical (attention|care|help)`)},
		},
	},
	{
		name:      "contraindication_warning",
		alertType: TypeMedicalAdvice,
		severity:  SeverityHigh,
		patterns: []clinicalPattern{
			{"do_not_mix", regexp.MustCompile(`(?i)(do not|don'?t|never) (mix|combine)\b[^.!?]*\b(medication|medicine|drug|with)`)},
			{"dangerous_combination", regexp.MustCompile(`(?i)dangerous (combination|interaction)`)},
			{"never_together", regexp.MustCompile(`(?i)should never (be taken|take)\b[^.!?]*\btogether`)},
		},
	},
	{
		name:      "lab_interpretation",
		alertType: TypeDiagnosticStatement,
		severity:  SeverityMedium,
		patterns: []clinicalPattern{
			{"lab_results_show", regexp.MustCompile(`(?i)your (lab|laboratory) (results?|values?|work) (show|shows|indicate|indicates|suggest|suggests)`)},
			{"blood_test_shows", regexp.MustCompile(`(?i)your blood (test|work) (shows?|indicates?|results)`)},
			{"results_mean", regexp.MustCompile(`(?i)(test|lab) results? (mean|means|indicate|indicates)`)},
		},
	},
}

// clinicalTerms is the bare terminology list, checked by substring. A match
// contributes LOW severity only.
var clinicalTerms = []string{
	"diagnosis",
	"prognosis",
	"treatment",
	"prescription",
	"dosage",
	"contraindication",
	"symptoms",
	"syndrome",
	"pathology",
	"chronic disease",
	"acute condition",
	"laboratory",
	"surgery",
	"medical emergency",
}

// likelyTextFields are the object keys most likely to hold free text. The
// structured walker extracts strings under these keys even where its depth
// bound would otherwise stop it.
var likelyTextFields = map[string]bool{
	"message":        true,
	"content":        true,
	"description":    true,
	"notes":          true,
	"advice":         true,
	"recommendation": true,
	"instructions":   true,
	"summary":        true,
	"analysis":       true,
	"response":       true,
	"answer":         true,
	"explanation":    true,
	"feedback":       true,
}

// maxWalkDepth bounds the structured walker.
const maxWalkDepth = 3

// snippetLimit caps the amount of scanned text echoed back in an alert.
const snippetLimit = 100

// Scanner classifies free text into clinical alerts. It holds no mutable
// state and is safe for concurrent use.
type Scanner struct {
	logger zerolog.Logger
}

func NewScanner(logger zerolog.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Analyze scans one text and returns its classification, or nil when no
// pattern matched. A panic during analysis is converted into a CRITICAL
// auto-block alert; a scan failure is never a silent pass.
func (s *Scanner) Analyze(text string) (alert *ClinicalAlert) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().
				Interface("panic", rec).
				Msg("clinical content analysis failed, returning auto-block alert")
			alert = failureAlert(text)
		}
	}()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		detected  []string
		severity  string
		alertType string
	)

	for _, family := range patternFamilies {
		for _, p := range family.patterns {
			if !p.re.MatchString(text) {
				continue
			}
			detected = append(detected, family.name+":"+p.label)
			if severityRank[family.severity] > severityRank[severity] {
				severity = family.severity
				alertType = family.alertType
			}
		}
	}

	lower := strings.ToLower(text)
	for _, term := range clinicalTerms {
		if strings.Contains(lower, term) {
			detected = append(detected, "clinical_terminology:"+term)
			if severityRank[SeverityLow] > severityRank[severity] {
				severity = SeverityLow
				alertType = TypeClinicalTerminology
			}
		}
	}

	if len(detected) == 0 {
		return nil
	}

	confidence := 0.3 + 0.2*float64(len(detected))
	if confidence > 1.0 {
		confidence = 1.0
	}

	return &ClinicalAlert{
		Severity:         severity,
		Type:             alertType,
		DetectedPatterns: detected,
		ContentSnippet:   snippet(text),
		ConfidenceScore:  confidence,
		RequiresReview:   severityRank[severity] >= severityRank[SeverityMedium],
		AutoBlock:        severity == SeverityCritical,
	}
}

// AnalyzeStructured walks decoded JSON up to maxWalkDepth levels and analyzes
// every string it finds. String values under likelyTextFields keys are also
// taken one level past the bound. Map keys are visited in sorted order so the
// alert list is deterministic.
func (s *Scanner) AnalyzeStructured(data interface{}) (alerts []ClinicalAlert) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().
				Interface("panic", rec).
				Msg("structured content analysis failed, returning auto-block alert")
			alerts = append(alerts, *failureAlert(""))
		}
	}()

	alerts = []ClinicalAlert{}
	s.walk(data, 0, &alerts)
	return alerts
}

func (s *Scanner) walk(v interface{}, depth int, alerts *[]ClinicalAlert) {
	switch val := v.(type) {
	case string:
		if depth <= maxWalkDepth {
			s.collect(val, alerts)
		}
	case map[string]interface{}:
		if depth > maxWalkDepth {
			return
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := val[k]
			if text, ok := child.(string); ok && likelyTextFields[strings.ToLower(k)] {
				s.collect(text, alerts)
				continue
			}
			s.walk(child, depth+1, alerts)
		}
	case []interface{}:
		if depth > maxWalkDepth {
			return
		}
		for _, child := range val {
			s.walk(child, depth+1, alerts)
		}
	}
}

func (s *Scanner) collect(text string, alerts *[]ClinicalAlert) {
	if a := s.Analyze(text); a != nil {
		*alerts = append(*alerts, *a)
	}
}

// HighestSeverity reports the maximum severity in a batch, or "" for none.
func HighestSeverity(alerts []ClinicalAlert) string {
	highest := ""
	for _, a := range alerts {
		if severityRank[a.Severity] > severityRank[highest] {
			highest = a.Severity
		}
	}
	return highest
}

// failureAlert is the maximum-risk classification used when analysis itself
// fails.
func failureAlert(text string) *ClinicalAlert {
	return &ClinicalAlert{
		Severity:         SeverityCritical,
		Type:             TypeMedicalAdvice,
		DetectedPatterns: []string{"scanner_failure"},
		ContentSnippet:   snippet(text),
		ConfidenceScore:  1.0,
		RequiresReview:   true,
		AutoBlock:        true,
	}
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLimit {
		return text
	}
	return string(runes[:snippetLimit])
}
