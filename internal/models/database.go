package models

// GORM models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StringArray stores a tag list as a JSON array in a text column on every
// driver, so tags may contain any character.
type StringArray []string

func (StringArray) GormDataType() string { return "text" }

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		s = StringArray{}
	}
	data, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data).Value()
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	var raw datatypes.JSON
	if err := raw.Scan(value); err != nil {
		return fmt.Errorf("cannot scan %T into StringArray: %w", value, err)
	}
	if len(raw) == 0 {
		*s = StringArray{}
		return nil
	}

	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return fmt.Errorf("decoding StringArray: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	*s = tags
	return nil
}

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project groups runs by system under test
type Project struct {
	BaseModel
	Name string `json:"name" gorm:"uniqueIndex;size:255;not null"`
}

// TestRun is the authoritative record of one ingested report.
// VectorID is nil until the report point exists in the vector store.
type TestRun struct {
	BaseModel
	RunUID         string            `json:"run_uid" gorm:"uniqueIndex;size:64;not null"`
	ProjectID      uint              `json:"project_id" gorm:"index;not null"`
	Project        Project           `json:"project"`
	Environment    string            `json:"environment" gorm:"index;size:128"`
	Timestamp      time.Time         `json:"timestamp" gorm:"index;not null"`
	BuildID        *string           `json:"build_id" gorm:"index;size:255"`
	Status         string            `json:"status" gorm:"size:16"`
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Skipped        int               `json:"skipped"`
	Undefined      int               `json:"undefined"`
	Pending        int               `json:"pending"`
	Duration       float64           `json:"duration"`
	Tags           StringArray       `json:"tags"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	VectorID       *string           `json:"vector_id" gorm:"index;size:64"`
	ChunksIndexed  bool              `json:"chunks_indexed" gorm:"index;not null;default:false"`

	Features []Feature `json:"features,omitempty" gorm:"foreignKey:TestRunID"`
}

type Feature struct {
	BaseModel
	TestRunID   uint        `json:"test_run_id" gorm:"index;not null"`
	FeatureUID  string      `json:"feature_uid" gorm:"type:text;not null"`
	ExternalID  string      `json:"external_id" gorm:"index;type:text"`
	Name        string      `json:"name" gorm:"index;type:text"`
	Description string      `json:"description"`
	URI         string      `json:"uri"`
	Tags        StringArray `json:"tags"`
	Position    int         `json:"position"`

	Scenarios []Scenario `json:"scenarios,omitempty" gorm:"foreignKey:FeatureID"`
}

type Scenario struct {
	BaseModel
	FeatureID   uint    `json:"feature_id" gorm:"index;not null"`
	TestRunID   uint    `json:"test_run_id" gorm:"index;not null"`
	ScenarioUID string  `json:"scenario_uid" gorm:"type:text;not null"`
	ExternalID  string  `json:"external_id" gorm:"type:text"`
	Name        string  `json:"name" gorm:"type:text"`
	Description string  `json:"description"`
	Status      string  `json:"status" gorm:"index;size:16;not null"`
	Duration    float64 `json:"duration"`
	IsFlaky     bool    `json:"is_flaky" gorm:"default:false"`
	Position    int     `json:"position"`

	Steps []Step        `json:"steps,omitempty" gorm:"foreignKey:ScenarioID"`
	Tags  []ScenarioTag `json:"tags,omitempty" gorm:"foreignKey:ScenarioID"`
}

type Step struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	ScenarioID   uint    `json:"scenario_id" gorm:"index;not null"`
	StepUID      string  `json:"step_uid" gorm:"type:text"`
	Position     int     `json:"position"`
	Keyword      string  `json:"keyword" gorm:"size:32"`
	Name         string  `json:"name"`
	Status       string  `json:"status" gorm:"size:16;not null"`
	Duration     float64 `json:"duration"`
	ErrorMessage string  `json:"error_message"`
	Location     string  `json:"location"`
}

// ScenarioTag holds the feature and scenario tags that apply to a scenario.
type ScenarioTag struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	ScenarioID uint   `json:"scenario_id" gorm:"index;not null"`
	Tag        string `json:"tag" gorm:"index;type:text;not null"`
}

type BuildInfo struct {
	BaseModel
	BuildID     string            `json:"build_id" gorm:"uniqueIndex;size:255;not null"`
	BuildNumber string            `json:"build_number" gorm:"size:128"`
	Branch      string            `json:"branch" gorm:"index;size:255"`
	CommitHash  string            `json:"commit_hash" gorm:"size:64"`
	BuildDate   time.Time         `json:"build_date"`
	BuildURL    string            `json:"build_url"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	VectorID    *string           `json:"vector_id" gorm:"size:64"`
}

// QueryLog represents query analytics
type QueryLog struct {
	BaseModel
	QueryText      string            `json:"query_text" gorm:"not null"`
	Filters        datatypes.JSONMap `json:"filters"`
	SourcesCount   int               `json:"sources_count" gorm:"default:0"`
	Confidence     float64           `json:"confidence"`
	Degraded       bool              `json:"degraded"`
	ResponseTimeMs int               `json:"response_time_ms"`
	RequestID      string            `json:"request_id" gorm:"size:64"`
	IPAddress      string            `json:"ip_address" gorm:"size:64"`
}

// PopularQuery represents frequently asked questions
type PopularQuery struct {
	BaseModel
	QueryText         string    `json:"query_text" gorm:"uniqueIndex;size:2000;not null"`
	SearchCount       int       `json:"search_count" gorm:"default:1"`
	AvgSourcesCount   float64   `json:"avg_sources_count" gorm:"default:0"`
	AvgResponseTimeMs int       `json:"avg_response_time_ms" gorm:"default:0"`
	LastSearched      time.Time `json:"last_searched"`
}

// SystemHealth represents service health monitoring
type SystemHealth struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ServiceName    string    `json:"service_name" gorm:"uniqueIndex;size:64;not null"`
	Status         string    `json:"status" gorm:"not null;check:status IN ('healthy','degraded','unhealthy')"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   string    `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at"`
}

// TableName methods for custom table names
func (Project) TableName() string      { return "projects" }
func (TestRun) TableName() string      { return "test_runs" }
func (Feature) TableName() string      { return "features" }
func (Scenario) TableName() string     { return "scenarios" }
func (Step) TableName() string         { return "steps" }
func (ScenarioTag) TableName() string  { return "scenario_tags" }
func (BuildInfo) TableName() string    { return "build_infos" }
func (QueryLog) TableName() string     { return "query_logs" }
func (PopularQuery) TableName() string { return "popular_queries" }
func (SystemHealth) TableName() string { return "system_health" }

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Project{},
		&TestRun{},
		&Feature{},
		&Scenario{},
		&Step{},
		&ScenarioTag{},
		&BuildInfo{},
		&QueryLog{},
		&PopularQuery{},
		&SystemHealth{},
	}
}

var validStatuses = map[string]bool{
	"PASSED":    true,
	"FAILED":    true,
	"SKIPPED":   true,
	"UNDEFINED": true,
	"PENDING":   true,
}

// Model validation methods
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name is required")
	}
	return nil
}

func (tr *TestRun) Validate() error {
	if tr.RunUID == "" {
		return fmt.Errorf("run uid is required")
	}
	if tr.ProjectID == 0 {
		return fmt.Errorf("project ID is required")
	}
	if tr.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

func (s *Scenario) Validate() error {
	if s.FeatureID == 0 {
		return fmt.Errorf("feature ID is required")
	}
	if !validStatuses[s.Status] {
		return fmt.Errorf("invalid scenario status: %s", s.Status)
	}
	return nil
}

func (b *BuildInfo) Validate() error {
	if b.BuildID == "" {
		return fmt.Errorf("build ID is required")
	}
	return nil
}

func (ql *QueryLog) Validate() error {
	if ql.QueryText == "" {
		return fmt.Errorf("query text is required")
	}
	if ql.ResponseTimeMs < 0 {
		return fmt.Errorf("response time cannot be negative")
	}
	return nil
}

// GORM hooks
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	return p.Validate()
}

func (tr *TestRun) BeforeCreate(tx *gorm.DB) error {
	return tr.Validate()
}

func (s *Scenario) BeforeCreate(tx *gorm.DB) error {
	return s.Validate()
}

func (b *BuildInfo) BeforeCreate(tx *gorm.DB) error {
	return b.Validate()
}

func (ql *QueryLog) BeforeCreate(tx *gorm.DB) error {
	return ql.Validate()
}
