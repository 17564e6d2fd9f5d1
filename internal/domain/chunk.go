package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ChunkType is the granularity a chunk's text summarises.
type ChunkType string

const (
	ChunkFeature   ChunkType = "feature"
	ChunkScenario  ChunkType = "scenario"
	ChunkError     ChunkType = "error"
	ChunkBuildInfo ChunkType = "build_info"
)

// PayloadType is the "type" discriminator carried by every vector point.
type PayloadType string

const (
	PayloadReport    PayloadType = "report"
	PayloadFeature   PayloadType = "feature"
	PayloadScenario  PayloadType = "scenario"
	PayloadStep      PayloadType = "step"
	PayloadError     PayloadType = "error"
	PayloadBuildInfo PayloadType = "build_info"
	PayloadTestCase  PayloadType = "test_case"
)

// Payload keys shared between writers and readers of vector points.
const (
	KeyType        = "type"
	KeyChunkType   = "chunk_type"
	KeyChunkIndex  = "chunk_index"
	KeyText        = "text"
	KeyTestRunID   = "test_run_id"
	KeyPGID        = "pg_id"
	KeyTags        = "tags"
	KeyFeatureID   = "feature_id"
	KeyFeatureName = "feature"
	KeyScenarioID  = "scenario_id"
	KeyScenario    = "scenario"
	KeyStatus      = "status"
	KeyStepID      = "step_id"
	KeyStepKeyword = "step_keyword"
	KeyStepName    = "step_name"
	KeyBuildID     = "build_id"
	KeyProject     = "project"
	KeyEnvironment = "environment"
	KeyTimestamp   = "timestamp"
)

// ChunkEnvelope holds the fields every chunk carries regardless of type.
type ChunkEnvelope struct {
	TestRunID string
	ChunkType ChunkType
	Tags      []string
}

// ChunkRef is the type-specific part of a chunk's metadata.
type ChunkRef interface {
	Type() ChunkType
	fields() map[string]interface{}
}

type FeatureChunkRef struct {
	FeatureID   string
	FeatureName string
}

func (FeatureChunkRef) Type() ChunkType { return ChunkFeature }

func (r FeatureChunkRef) fields() map[string]interface{} {
	return map[string]interface{}{
		KeyFeatureID:   r.FeatureID,
		KeyFeatureName: r.FeatureName,
	}
}

type ScenarioChunkRef struct {
	FeatureID    string
	FeatureName  string
	ScenarioID   string
	ScenarioName string
	Status       StepStatus
}

func (ScenarioChunkRef) Type() ChunkType { return ChunkScenario }

func (r ScenarioChunkRef) fields() map[string]interface{} {
	return map[string]interface{}{
		KeyFeatureID:   r.FeatureID,
		KeyFeatureName: r.FeatureName,
		KeyScenarioID:  r.ScenarioID,
		KeyScenario:    r.ScenarioName,
		KeyStatus:      string(r.Status),
	}
}

// ErrorChunkRef identifies the failing step an error chunk describes.
type ErrorChunkRef struct {
	FeatureID    string
	FeatureName  string
	ScenarioID   string
	ScenarioName string
	StepID       string
	StepKeyword  string
	StepName     string
}

func (ErrorChunkRef) Type() ChunkType { return ChunkError }

func (r ErrorChunkRef) fields() map[string]interface{} {
	return map[string]interface{}{
		KeyFeatureID:   r.FeatureID,
		KeyFeatureName: r.FeatureName,
		KeyScenarioID:  r.ScenarioID,
		KeyScenario:    r.ScenarioName,
		KeyStepID:      r.StepID,
		KeyStepKeyword: r.StepKeyword,
		KeyStepName:    r.StepName,
		KeyStatus:      string(StatusFailed),
	}
}

type BuildChunkRef struct {
	BuildID string
}

func (BuildChunkRef) Type() ChunkType { return ChunkBuildInfo }

func (r BuildChunkRef) fields() map[string]interface{} {
	return map[string]interface{}{KeyBuildID: r.BuildID}
}

// ChunkMetadata is the envelope plus exactly one type-specific ref.
// Context carries run-level values (project, environment, timestamp, pg_id)
// copied onto the point payload so filtered retrieval can use them.
type ChunkMetadata struct {
	ChunkEnvelope
	Ref     ChunkRef
	Context map[string]interface{}
}

// NewChunkMetadata builds metadata whose chunk type is taken from the ref.
func NewChunkMetadata(testRunID string, tags []string, ref ChunkRef) ChunkMetadata {
	return ChunkMetadata{
		ChunkEnvelope: ChunkEnvelope{
			TestRunID: testRunID,
			ChunkType: ref.Type(),
			Tags:      UnionTags(tags),
		},
		Ref:     ref,
		Context: map[string]interface{}{},
	}
}

// Validate checks that the ref matches the declared chunk type.
func (m ChunkMetadata) Validate() error {
	if m.Ref == nil {
		return Validationf("chunk metadata has no ref")
	}
	if m.Ref.Type() != m.ChunkType {
		return Validationf("chunk type %q does not match %q ref", m.ChunkType, m.Ref.Type())
	}
	return nil
}

func (m ChunkMetadata) FeatureID() string {
	switch r := m.Ref.(type) {
	case FeatureChunkRef:
		return r.FeatureID
	case ScenarioChunkRef:
		return r.FeatureID
	case ErrorChunkRef:
		return r.FeatureID
	}
	return ""
}

func (m ChunkMetadata) ScenarioID() string {
	switch r := m.Ref.(type) {
	case ScenarioChunkRef:
		return r.ScenarioID
	case ErrorChunkRef:
		return r.ScenarioID
	}
	return ""
}

func (m ChunkMetadata) BuildID() string {
	if r, ok := m.Ref.(BuildChunkRef); ok {
		return r.BuildID
	}
	if id, ok := m.Context[KeyBuildID].(string); ok {
		return id
	}
	return ""
}

// Payload flattens the metadata into a vector point payload.
func (m ChunkMetadata) Payload() map[string]interface{} {
	payload := make(map[string]interface{}, len(m.Context)+8)
	for k, v := range m.Context {
		payload[k] = v
	}
	if m.Ref != nil {
		for k, v := range m.Ref.fields() {
			payload[k] = v
		}
	}
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	payload[KeyType] = string(m.ChunkType)
	payload[KeyChunkType] = string(m.ChunkType)
	payload[KeyTestRunID] = m.TestRunID
	payload[KeyTags] = tags
	return payload
}

// TextChunk is a span of descriptive text. Index is its position among the
// windows the chunker produced for one source text.
type TextChunk struct {
	Text     string
	Index    int
	Metadata ChunkMetadata
}

// Source names a chunk for citations.
func (c TextChunk) Source() string {
	switch r := c.Metadata.Ref.(type) {
	case FeatureChunkRef:
		return fmt.Sprintf("feature:%s", r.FeatureName)
	case ScenarioChunkRef:
		return fmt.Sprintf("scenario:%s", r.ScenarioName)
	case ErrorChunkRef:
		return fmt.Sprintf("error:%s", r.ScenarioName)
	case BuildChunkRef:
		return fmt.Sprintf("build_info:%s", r.BuildID)
	}
	return string(c.Metadata.ChunkType)
}

// TextEmbedding is write-once: re-ingestion produces new ids.
type TextEmbedding struct {
	ID     string
	Chunk  TextChunk
	Vector []float32
}

func NewTextEmbedding(chunk TextChunk, vector []float32) TextEmbedding {
	return TextEmbedding{
		ID:     uuid.NewString(),
		Chunk:  chunk,
		Vector: vector,
	}
}

// Payload returns the vector point payload including the chunk text.
func (e TextEmbedding) Payload() map[string]interface{} {
	payload := e.Chunk.Metadata.Payload()
	payload[KeyText] = e.Chunk.Text
	payload[KeyChunkIndex] = e.Chunk.Index
	return payload
}
