package vectordb

import "fmt"

// Qdrant REST request and response bodies.

type collectionParams struct {
	Vectors vectorParams `json:"vectors"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type upsertRequest struct {
	Points []Point `json:"points"`
}

type fieldCondition struct {
	Key   string                 `json:"key"`
	Match map[string]interface{} `json:"match"`
}

type qdrantFilter struct {
	Must []fieldCondition `json:"must"`
}

type searchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type searchResponse struct {
	Result []struct {
		ID      interface{}            `json:"id"`
		Score   float64                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
	Status interface{} `json:"status"`
}

type countRequest struct {
	Filter *qdrantFilter `json:"filter,omitempty"`
	Exact  bool          `json:"exact"`
}

type countResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

type scrollRequest struct {
	Filter      *qdrantFilter `json:"filter,omitempty"`
	Limit       int           `json:"limit"`
	Offset      interface{}   `json:"offset,omitempty"`
	WithPayload bool          `json:"with_payload"`
	WithVector  bool          `json:"with_vector"`
}

type scrollResponse struct {
	Result struct {
		Points []struct {
			ID      interface{}            `json:"id"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"points"`
		NextPageOffset interface{} `json:"next_page_offset"`
	} `json:"result"`
}

func toQdrantFilter(f Filter) *qdrantFilter {
	if f.IsEmpty() {
		return nil
	}
	out := &qdrantFilter{}
	for _, key := range f.keys() {
		switch v := f.Must[key].(type) {
		case []string:
			out.Must = append(out.Must, fieldCondition{Key: key, Match: map[string]interface{}{"any": v}})
		default:
			out.Must = append(out.Must, fieldCondition{Key: key, Match: map[string]interface{}{"value": v}})
		}
	}
	return out
}

// pointID renders a Qdrant id (uuid string or unsigned integer).
func pointID(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}
