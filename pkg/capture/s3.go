package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultS3FlushBytes is the buffered size at which S3Sink uploads an
// object.
const DefaultS3FlushBytes = 4 << 20

// S3Sink buffers records and uploads them to S3 as timestamped JSON
// lines objects. One object is written per flush, so object count
// stays proportional to captured volume, not event rate.
type S3Sink struct {
	client     *s3.Client
	bucket     string
	prefix     string
	flushBytes int

	mu  sync.Mutex
	buf bytes.Buffer
	ctx context.Context
}

// NewS3Sink creates a sink uploading under bucket/prefix. ctx bounds
// every upload, including the final one from Close.
func NewS3Sink(ctx context.Context, client *s3.Client, bucket, prefix string) *S3Sink {
	return &S3Sink{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		flushBytes: DefaultS3FlushBytes,
		ctx:        ctx,
	}
}

// WithFlushBytes sets the buffer size that triggers an upload.
func (s *S3Sink) WithFlushBytes(n int) *S3Sink {
	s.flushBytes = n
	return s
}

// Write buffers one record, flushing when the buffer is full.
func (s *S3Sink) Write(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("capture: marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Write(line)
	s.buf.WriteByte('\n')

	if s.buf.Len() >= s.flushBytes {
		return s.flushLocked()
	}
	return nil
}

// Flush uploads any buffered records immediately.
func (s *S3Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// flushLocked uploads the buffer as one object. Caller holds mu.
func (s *S3Sink) flushLocked() error {
	if s.buf.Len() == 0 {
		return nil
	}

	key := fmt.Sprintf("%s%s.jsonl", s.prefix,
		time.Now().UTC().Format("20060102T150405.000000000Z"))

	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(s.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("capture: put s3://%s/%s: %w", s.bucket, key, err)
	}

	s.buf.Reset()
	return nil
}

// Close flushes the remaining buffer.
func (s *S3Sink) Close() error {
	return s.Flush()
}
