package ingestion

import (
	"fmt"
	"strings"

	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/domain"
)

// FeatureText renders "Feature: <name>\n\n<description>".
func FeatureText(f domain.Feature) string {
	return fmt.Sprintf("Feature: %s\n\n%s", f.Name, f.Description)
}

// ScenarioText renders the scenario header, its description and one
// "<keyword> <name>" line per step in order.
func ScenarioText(s domain.Scenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n%s\n", s.Name, s.Description)
	for i, step := range s.Steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(stepLine(step))
	}
	return b.String()
}

// ErrorText renders "Error in '<keyword> <name>': <message>".
func ErrorText(step domain.Step) string {
	return fmt.Sprintf("Error in '%s': %s", stepLine(step), step.ErrorMessage)
}

func stepLine(step domain.Step) string {
	return strings.TrimSpace(step.Keyword + " " + step.Name)
}

// BuildInfoText summarises build metadata for semantic search.
func BuildInfoText(b domain.BuildInfo) string {
	lines := []string{
		fmt.Sprintf("Build: %s (number %s)", b.BuildID, b.BuildNumber),
		fmt.Sprintf("Branch: %s", b.Branch),
		fmt.Sprintf("Commit: %s", b.CommitHash),
		fmt.Sprintf("Date: %s", clock.Format(b.BuildDate)),
	}
	if b.BuildURL != "" {
		lines = append(lines, fmt.Sprintf("URL: %s", b.BuildURL))
	}
	return strings.Join(lines, "\n")
}

// BuildChunks returns the unsplit chunks for a run: one per feature, one
// per scenario and one per failing step that carries an error message.
// Scenario and error chunks carry the union of feature and scenario tags.
func BuildChunks(run *domain.TestRun) []domain.TextChunk {
	runContext := RunContext(run)
	var chunks []domain.TextChunk

	add := func(text string, tags []string, ref domain.ChunkRef) {
		meta := domain.NewChunkMetadata(run.ID, tags, ref)
		for k, v := range runContext {
			meta.Context[k] = v
		}
		chunks = append(chunks, domain.TextChunk{Text: text, Metadata: meta})
	}

	for _, f := range run.Features {
		add(FeatureText(f), f.Tags, domain.FeatureChunkRef{
			FeatureID:   f.ID,
			FeatureName: f.Name,
		})

		for _, s := range f.Scenarios {
			tags := domain.UnionTags(f.Tags, s.Tags)
			add(ScenarioText(s), tags, domain.ScenarioChunkRef{
				FeatureID:    f.ID,
				FeatureName:  f.Name,
				ScenarioID:   s.ID,
				ScenarioName: s.Name,
				Status:       s.Status,
			})

			for _, step := range s.FailedSteps() {
				add(ErrorText(step), tags, domain.ErrorChunkRef{
					FeatureID:    f.ID,
					FeatureName:  f.Name,
					ScenarioID:   s.ID,
					ScenarioName: s.Name,
					StepID:       step.ID,
					StepKeyword:  step.Keyword,
					StepName:     step.Name,
				})
			}
		}
	}
	return chunks
}

// RunContext holds the run-level payload values copied onto every chunk.
func RunContext(run *domain.TestRun) map[string]interface{} {
	ctx := map[string]interface{}{
		domain.KeyProject:     run.Project,
		domain.KeyEnvironment: run.Environment,
		domain.KeyTimestamp:   clock.Format(run.Timestamp),
	}
	if run.PGID != 0 {
		ctx[domain.KeyPGID] = run.PGID
	}
	if run.BuildID != "" {
		ctx[domain.KeyBuildID] = run.BuildID
	}
	return ctx
}
