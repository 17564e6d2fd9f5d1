package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cukesight/backend/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrefix(t *testing.T) {
	ts := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("x", -2*3600))

	tests := []struct {
		name   string
		prefix string
		req    Request
		want   string
	}{
		{
			name: "default prefix",
			req:  Request{RunID: "run-1", Project: "shop", Timestamp: ts},
			want: "reports/shop/2024/03/10/run-1",
		},
		{
			name:   "trailing slash stripped",
			prefix: "archive/",
			req:    Request{RunID: "run-1", Project: "shop", Timestamp: ts},
			want:   "archive/shop/2024/03/10/run-1",
		},
		{
			name: "project sanitised",
			req:  Request{RunID: "run-2", Project: "team/shop", Timestamp: ts},
			want: "reports/team_shop/2024/03/10/run-2",
		},
		{
			name: "empty project",
			req:  Request{RunID: "run-3", Timestamp: ts},
			want: "reports/default/2024/03/10/run-3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolvePrefix(tt.prefix, tt.req))
		})
	}
}

func TestNewSelectsNoopWhenDisabled(t *testing.T) {
	a := New(logrus.New(), config.ArchiveConfig{Enabled: false})
	_, ok := a.(Noop)
	assert.True(t, ok)

	location, err := a.Archive(context.Background(), Request{RunID: "x"})
	require.NoError(t, err)
	assert.Empty(t, location)
}

func TestS3ArchiverUploadsEachPayload(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		if r.Method == http.MethodPut {
			keys = append(keys, r.URL.Path)
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := NewS3Archiver(logrus.New(), config.ArchiveConfig{
		Enabled:         true,
		Bucket:          "reports-bucket",
		Endpoint:        server.URL,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})

	location, err := a.Archive(context.Background(), Request{
		RunID:     "run-1",
		Project:   "shop",
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Payloads:  [][]byte{[]byte(`[{"a":1}]`), []byte(`[]`)},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://reports-bucket/reports/shop/2024/03/01/run-1", location)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/reports-bucket/reports/shop/2024/03/01/run-1/report-0.json",
		"/reports-bucket/reports/shop/2024/03/01/run-1/report-1.json",
	}, keys)
}
