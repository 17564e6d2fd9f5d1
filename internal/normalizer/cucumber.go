package normalizer

// Raw Cucumber JSON report records as written by cucumber-jvm, cucumber-js
// and compatible formatters. Only the fields the domain needs are decoded.

type rawTag struct {
	Name string `json:"name"`
	Line int    `json:"line,omitempty"`
}

type rawResult struct {
	Status       string   `json:"status"`
	Duration     *float64 `json:"duration,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

type rawMatch struct {
	Location string `json:"location,omitempty"`
}

type rawStep struct {
	Keyword string     `json:"keyword"`
	Name    string     `json:"name"`
	Line    int        `json:"line,omitempty"`
	Result  *rawResult `json:"result,omitempty"`
	Match   *rawMatch  `json:"match,omitempty"`
}

type rawElement struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Keyword     string    `json:"keyword"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Line        int       `json:"line,omitempty"`
	Tags        []rawTag  `json:"tags"`
	Steps       []rawStep `json:"steps"`
}

type rawFeature struct {
	ID          string       `json:"id"`
	ExternalID  string       `json:"external_id,omitempty"`
	URI         string       `json:"uri"`
	Keyword     string       `json:"keyword"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Tags        []rawTag     `json:"tags"`
	Elements    []rawElement `json:"elements"`
}

const (
	elementScenario        = "scenario"
	elementScenarioOutline = "scenario_outline"
)
