package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cukesight/backend/internal/domain"
	"github.com/cukesight/backend/internal/retry"
	"github.com/sirupsen/logrus"
)

// QdrantStore talks to Qdrant's REST API using cosine distance.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
	retry      retry.Config
	logger     logrus.FieldLogger
}

func NewQdrantStore(baseURL, apiKey, collection string, timeout time.Duration, logger logrus.FieldLogger) *QdrantStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		retry: retry.Config{
			MaxRetries: 2,
			BaseDelay:  250 * time.Millisecond,
			MaxDelay:   2 * time.Second,
			Retryable:  domain.IsRetryable,
		},
		logger: logger.WithField("component", "qdrant"),
	}
}

// WithRetry overrides the retry policy for upstream failures.
func (q *QdrantStore) WithRetry(cfg retry.Config) *QdrantStore {
	cfg.Retryable = domain.IsRetryable
	q.retry = cfg
	return q
}

func (q *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + suffix
}

// EnsureCollection creates the collection when it does not exist yet.
func (q *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}

	err := q.makeRequest(ctx, http.MethodGet, q.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	q.logger.WithFields(logrus.Fields{
		"collection": q.collection,
		"dimension":  dimension,
	}).Info("Creating vector collection")

	return q.makeRequest(ctx, http.MethodPut, q.collectionPath(""), collectionParams{
		Vectors: vectorParams{Size: dimension, Distance: "Cosine"},
	}, nil)
}

func (q *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	return retry.Do(ctx, q.retry, q.logger, func() error {
		return q.makeRequest(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), upsertRequest{Points: points}, nil)
	})
}

func (q *QdrantStore) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 5
	}

	var response searchResponse
	err := retry.Do(ctx, q.retry, q.logger, func() error {
		return q.makeRequest(ctx, http.MethodPost, q.collectionPath("/points/search"), searchRequest{
			Vector:      vector,
			Limit:       limit,
			WithPayload: true,
			Filter:      toQdrantFilter(filter),
		}, &response)
	})
	if err != nil {
		return nil, err
	}

	results := make([]ScoredPoint, 0, len(response.Result))
	for _, r := range response.Result {
		results = append(results, ScoredPoint{
			ID:      pointID(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return results, nil
}

func (q *QdrantStore) Count(ctx context.Context, filter Filter) (int, error) {
	var response countResponse
	err := retry.Do(ctx, q.retry, q.logger, func() error {
		return q.makeRequest(ctx, http.MethodPost, q.collectionPath("/points/count"), countRequest{
			Filter: toQdrantFilter(filter),
			Exact:  true,
		}, &response)
	})
	if err != nil {
		return 0, err
	}
	return response.Result.Count, nil
}

func (q *QdrantStore) Scroll(ctx context.Context, filter Filter, limit int, offset string) ([]Point, string, error) {
	if limit <= 0 {
		limit = 100
	}
	req := scrollRequest{
		Filter:      toQdrantFilter(filter),
		Limit:       limit,
		WithPayload: true,
	}
	if offset != "" {
		req.Offset = offset
	}

	var response scrollResponse
	err := retry.Do(ctx, q.retry, q.logger, func() error {
		return q.makeRequest(ctx, http.MethodPost, q.collectionPath("/points/scroll"), req, &response)
	})
	if err != nil {
		return nil, "", err
	}

	points := make([]Point, 0, len(response.Result.Points))
	for _, p := range response.Result.Points {
		points = append(points, Point{ID: pointID(p.ID), Payload: p.Payload})
	}
	return points, pointID(response.Result.NextPageOffset), nil
}

func (q *QdrantStore) Ping(ctx context.Context) error {
	return q.makeRequest(ctx, http.MethodGet, "/collections", nil, nil)
}

func (q *QdrantStore) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	url := q.baseURL + endpoint

	var body io.Reader
	var contentLength int

	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
		contentLength = len(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	q.logger.WithFields(logrus.Fields{
		"method":   method,
		"url":      url,
		"has_body": payload != nil,
		"size":     contentLength,
	}).Debug("Making Qdrant request")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return domain.Unavailable("qdrant", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Unavailable("qdrant", fmt.Errorf("failed to read response: %w", err))
	}

	// Only log response body for small responses or errors
	if len(responseBody) < 500 || resp.StatusCode >= 400 {
		q.logger.WithFields(logrus.Fields{
			"status_code":   resp.StatusCode,
			"method":        method,
			"url":           url,
			"response_body": string(responseBody),
		}).Debug("Qdrant response received")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, method, endpoint)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.Unavailable("qdrant", fmt.Errorf("status %d: %s", resp.StatusCode, string(responseBody)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("qdrant request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	if result != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("%w: failed to unmarshal qdrant response: %v", domain.ErrInvalidResponse, err)
		}
	}

	return nil
}

var _ Store = (*QdrantStore)(nil)
