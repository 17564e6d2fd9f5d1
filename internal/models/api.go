package models

// IngestRequest carries one or more Cucumber JSON reports. Reports are raw
// JSON so a malformed one can be skipped without rejecting the request.
type IngestRequest struct {
	Reports     []RawReport            `json:"reports" binding:"required,min=1"`
	Project     string                 `json:"project"`
	Environment string                 `json:"environment"`
	BuildID     string                 `json:"build_id"`
	Timestamp   string                 `json:"timestamp"`
	Tags        []string               `json:"tags"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// RawReport keeps the original bytes of one report.
type RawReport []byte

func (r *RawReport) UnmarshalJSON(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

func (r RawReport) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

type BuildInfoRequest struct {
	BuildID     string                 `json:"build_id" binding:"required"`
	BuildNumber string                 `json:"build_number" binding:"required"`
	Branch      string                 `json:"branch"`
	CommitHash  string                 `json:"commit_hash"`
	BuildDate   string                 `json:"build_date" binding:"required"`
	BuildURL    string                 `json:"build_url"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type QueryRequest struct {
	Query   string        `json:"query" binding:"required"`
	Filters *QueryFilters `json:"filters"`
}

type QueryFilters struct {
	ChunkType   string   `json:"chunk_type"`
	TestRunID   string   `json:"test_run_id"`
	Project     string   `json:"project"`
	Environment string   `json:"environment"`
	Feature     string   `json:"feature"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`
	Days        int      `json:"days"`
}

type AnalyzeRequest struct {
	Environment string `json:"environment"`
	Feature     string `json:"feature"`
	Days        int    `json:"days"`
	Limit       int    `json:"limit"`
}
