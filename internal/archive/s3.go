package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cukesight/backend/internal/config"
	"github.com/sirupsen/logrus"
)

// S3Archiver implements Archiver for S3-compatible storage.
type S3Archiver struct {
	log    logrus.FieldLogger
	cfg    config.ArchiveConfig
	client *s3.Client
}

var _ Archiver = (*S3Archiver)(nil)

// NewS3Archiver creates an archiver from the given configuration.
func NewS3Archiver(log logrus.FieldLogger, cfg config.ArchiveConfig) *S3Archiver {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}

			if cfg.UsePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return &S3Archiver{
		log:    log.WithField("component", "s3-archiver"),
		cfg:    cfg,
		client: s3.New(s3.Options{}, opts...),
	}
}

// New returns the archiver selected by cfg.
func New(log logrus.FieldLogger, cfg config.ArchiveConfig) Archiver {
	if !cfg.Enabled {
		return Noop{}
	}
	return NewS3Archiver(log, cfg)
}

// Preflight verifies connectivity by writing a small test object.
func (a *S3Archiver) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("cukesight write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(".cukesight-write-test"),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", a.cfg.Bucket, err)
	}
	return nil
}

// Archive uploads each payload as report-<n>.json under the run prefix.
func (a *S3Archiver) Archive(ctx context.Context, req Request) (string, error) {
	prefix := resolvePrefix(a.cfg.Prefix, req)

	for i, payload := range req.Payloads {
		key := fmt.Sprintf("%s/report-%d.json", prefix, i)

		a.log.WithFields(logrus.Fields{
			"key":    key,
			"bucket": a.cfg.Bucket,
		}).Debug("Uploading report")

		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return "", fmt.Errorf("PutObject %s: %w", key, err)
		}
	}

	a.log.WithFields(logrus.Fields{
		"reports": len(req.Payloads),
		"bucket":  a.cfg.Bucket,
		"prefix":  prefix,
	}).Info("Reports archived")

	return fmt.Sprintf("s3://%s/%s", a.cfg.Bucket, prefix), nil
}

// resolvePrefix builds <prefix>/<project>/<yyyy>/<mm>/<dd>/<run id>.
func resolvePrefix(prefix string, req Request) string {
	if prefix == "" {
		prefix = "reports"
	}
	project := strings.ReplaceAll(strings.TrimSpace(req.Project), "/", "_")
	if project == "" {
		project = "default"
	}
	return strings.Join([]string{
		strings.TrimRight(prefix, "/"),
		project,
		req.Timestamp.UTC().Format("2006/01/02"),
		req.RunID,
	}, "/")
}
