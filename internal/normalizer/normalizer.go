package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cukesight/backend/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DurationUnit is the unit a formatter writes step durations in.
type DurationUnit string

const (
	// Nanoseconds is used by cucumber-jvm and cucumber-js.
	Nanoseconds DurationUnit = "nanoseconds"
	// Microseconds is used by some legacy and Ruby formatters.
	Microseconds DurationUnit = "microseconds"
)

// ParseDurationUnit accepts "nanoseconds"/"ns" and "microseconds"/"us".
func ParseDurationUnit(value string) (DurationUnit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "nanoseconds", "ns":
		return Nanoseconds, nil
	case "microseconds", "us":
		return Microseconds, nil
	}
	return "", fmt.Errorf("unknown duration unit %q", value)
}

// Seconds converts a raw duration into seconds. Negative values clamp to 0.
func (u DurationUnit) Seconds(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	if u == Microseconds {
		return raw / 1e6
	}
	return raw / 1e9
}

// PayloadError records a payload skipped because it could not be decoded.
type PayloadError struct {
	Index int
	Err   error
}

func (e PayloadError) Error() string {
	return fmt.Sprintf("payload %d: %v", e.Index, e.Err)
}

type Result struct {
	Features           []domain.Feature
	FeaturesProcessed  int
	ScenariosProcessed int
	PayloadErrors      []PayloadError
}

// AllFailed reports whether every payload in a non-empty batch was skipped.
func (r *Result) AllFailed(payloadCount int) bool {
	return payloadCount > 0 && len(r.PayloadErrors) == payloadCount
}

// Normalizer turns Cucumber JSON reports into domain features. It performs no I/O.
type Normalizer struct {
	unit   DurationUnit
	logger logrus.FieldLogger
}

func New(unit DurationUnit, logger logrus.FieldLogger) *Normalizer {
	if unit == "" {
		unit = Nanoseconds
	}
	return &Normalizer{
		unit:   unit,
		logger: logger.WithField("component", "normalizer"),
	}
}

// Normalize decodes every payload. A malformed payload is recorded in
// PayloadErrors and skipped; the rest of the batch continues.
func (n *Normalizer) Normalize(payloads [][]byte) *Result {
	result := &Result{Features: []domain.Feature{}}

	for i, payload := range payloads {
		raw, err := decode(payload)
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"payload_index": i,
				"payload_size":  len(payload),
			}).WithError(err).Warn("Skipping malformed report payload")
			result.PayloadErrors = append(result.PayloadErrors, PayloadError{Index: i, Err: err})
			continue
		}

		for _, rf := range raw {
			feature := n.feature(rf)
			result.Features = append(result.Features, feature)
			result.FeaturesProcessed++
			result.ScenariosProcessed += len(feature.Scenarios)
		}
	}

	n.logger.WithFields(logrus.Fields{
		"payloads":  len(payloads),
		"skipped":   len(result.PayloadErrors),
		"features":  result.FeaturesProcessed,
		"scenarios": result.ScenariosProcessed,
	}).Debug("Normalized report batch")

	return result
}

func decode(payload []byte) ([]rawFeature, error) {
	if !utf8.Valid(payload) {
		return nil, domain.Validationf("payload is not valid UTF-8")
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, domain.Validationf("payload is empty")
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, domain.Validationf("payload is null")
	}

	if trimmed[0] == '{' {
		var single rawFeature
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, domain.Validationf("unparsable feature object: %v", err)
		}
		return []rawFeature{single}, nil
	}

	var elements []*rawFeature
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, domain.Validationf("unparsable report: %v", err)
	}
	features := make([]rawFeature, 0, len(elements))
	for i, rf := range elements {
		if rf == nil {
			return nil, domain.Validationf("feature %d is null", i)
		}
		features = append(features, *rf)
	}
	return features, nil
}

// canonicalID prefers external_id over id, generating one when both are absent.
func canonicalID(externalID, id string) (canonical, external string) {
	external = strings.TrimSpace(externalID)
	if external == "" {
		external = strings.TrimSpace(id)
	}
	if external == "" {
		return uuid.NewString(), ""
	}
	return external, external
}

func flattenTags(tags []rawTag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return domain.UnionTags(names)
}

func (n *Normalizer) feature(rf rawFeature) domain.Feature {
	id, external := canonicalID(rf.ExternalID, rf.ID)
	feature := domain.Feature{
		ID:          id,
		ExternalID:  external,
		Name:        strings.TrimSpace(rf.Name),
		Description: strings.TrimSpace(rf.Description),
		URI:         rf.URI,
		Tags:        flattenTags(rf.Tags),
		Scenarios:   []domain.Scenario{},
	}

	for _, el := range rf.Elements {
		kind := strings.ToLower(strings.TrimSpace(el.Type))
		if kind != elementScenario && kind != elementScenarioOutline {
			continue
		}
		feature.Scenarios = append(feature.Scenarios, n.scenario(feature.ID, el))
	}
	return feature
}

// scenario keeps only the scenario's own tags. Feature tags are unioned in
// when chunk metadata is built.
func (n *Normalizer) scenario(featureID string, el rawElement) domain.Scenario {
	id, external := canonicalID(el.ExternalID, el.ID)
	scenario := domain.Scenario{
		ID:          id,
		ExternalID:  external,
		FeatureID:   featureID,
		Name:        strings.TrimSpace(el.Name),
		Description: strings.TrimSpace(el.Description),
		Tags:        flattenTags(el.Tags),
		Steps:       make([]domain.Step, 0, len(el.Steps)),
	}

	for i, rs := range el.Steps {
		scenario.Steps = append(scenario.Steps, n.step(fmt.Sprintf("%s;%d", id, i), rs))
	}
	scenario.Recompute()
	return scenario
}

func (n *Normalizer) step(id string, rs rawStep) domain.Step {
	step := domain.Step{
		ID:      id,
		Name:    strings.TrimSpace(rs.Name),
		Keyword: strings.TrimSpace(rs.Keyword),
		Status:  domain.StatusUndefined,
	}
	if rs.Match != nil {
		step.Location = rs.Match.Location
	}
	if rs.Result != nil {
		step.Status = domain.ParseStepStatus(rs.Result.Status)
		step.ErrorMessage = strings.TrimSpace(rs.Result.ErrorMessage)
		if rs.Result.Duration != nil {
			step.Duration = n.unit.Seconds(*rs.Result.Duration)
		}
	}
	return step
}
