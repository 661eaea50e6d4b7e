package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Sink receives encoded records.
type Sink interface {
	Send(ctx context.Context, record []byte) error
}

// HTTPSink posts records to a telemetry server.
type HTTPSink struct {
	URL      string
	Client   *http.Client
	Attempts uint
	Delay    time.Duration
}

// NewHTTPSink posts to url with three attempts and exponential backoff.
func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{
		URL:      url,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Attempts: 3,
		Delay:    200 * time.Millisecond,
	}
}

// Send implements Sink. Client errors are not retried.
func (s *HTTPSink) Send(ctx context.Context, record []byte) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(record))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.Client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			switch {
			case resp.StatusCode >= 500:
				return fmt.Errorf("telemetry server returned %s", resp.Status)
			case resp.StatusCode >= 400:
				return retry.Unrecoverable(fmt.Errorf("telemetry server rejected record: %s", resp.Status))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.Attempts),
		retry.Delay(s.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// FileSink appends records to a JSON array file.
type FileSink struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileSink writes to path on fs.
func NewFileSink(fs afero.Fs, path string) *FileSink {
	return &FileSink{fs: fs, path: path}
}

// Send implements Sink. A missing or corrupt file starts a new array.
func (s *FileSink) Send(_ context.Context, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		data = []byte("[]")
	}
	data, err = sjson.SetRawBytes(data, "-1", record)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.path, data, 0o644)
}
