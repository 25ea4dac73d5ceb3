// Package source acquires MRF byte streams from local files, HTTP(S) URLs,
// or S3 URIs, with transparent gzip decompression. Retry policy for
// transient network failure lives here, outside the scan core.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/pgzip"
)

var httpClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	},
	Timeout: 3 * time.Hour, // large files (50GB+) at slow CDN speeds can take over an hour
}

// Stream is an open MRF byte stream. Read returns decompressed bytes; Close
// releases the decompressor and the underlying source.
type Stream struct {
	io.Reader
	closers []io.Closer
	counted *countingReader
	total   int64 // raw (pre-decompression) size, -1 when unknown
}

// Close releases all underlying resources.
func (s *Stream) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// VerifyComplete checks, after a successful scan, that the full raw payload
// was consumed. A short read means mid-stream truncation that the gzip layer
// may not have surfaced.
func (s *Stream) VerifyComplete() error {
	if s.total > 0 && s.counted.n != s.total {
		return fmt.Errorf("stream truncated: got %d of %d bytes", s.counted.n, s.total)
	}
	return nil
}

// Open opens src — a local path, an http(s):// URL, or an s3://bucket/key
// URI. Gzip payloads are detected by magic bytes and decompressed
// transparently. onProgress, if non-nil, receives raw byte counts.
func Open(ctx context.Context, src string, onProgress func(read, total int64)) (*Stream, error) {
	var (
		body  io.ReadCloser
		total int64
		err   error
	)
	switch {
	case strings.HasPrefix(src, "s3://"):
		body, total, err = openS3(ctx, src)
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		body, total, err = openHTTP(ctx, src)
	default:
		body, total, err = openFile(src)
	}
	if err != nil {
		return nil, err
	}

	stream := &Stream{closers: []io.Closer{body}, total: total}

	var reader io.Reader = body
	if onProgress != nil {
		reader = &progressReader{reader: reader, total: total, callback: onProgress}
	}
	stream.counted = &countingReader{reader: reader}

	buffered := bufio.NewReaderSize(stream.counted, 64*1024)
	magic, _ := buffered.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(buffered)
		if err != nil {
			body.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		stream.Reader = gz
		stream.closers = append([]io.Closer{gz}, stream.closers...)
	} else {
		stream.Reader = buffered
	}
	return stream, nil
}

func openFile(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	total := int64(-1)
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	return f, total, nil
}

// openHTTP performs a GET with up to 3 attempts and exponential backoff.
// Client errors (4xx) are not retried.
func openHTTP(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, "GET", url, nil)
		if reqErr != nil {
			return nil, 0, fmt.Errorf("creating request: %w", reqErr)
		}

		resp, err = httpClient.Do(req)
		if err != nil {
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp.Body, resp.ContentLength, nil
		}
		resp.Body.Close()
		err = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, 0, err
		}
	}

	return nil, 0, fmt.Errorf("download failed after retries: %w", err)
}

func openS3(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" || u.Path == "" {
		return nil, 0, fmt.Errorf("invalid s3 uri %q", uri)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("s3 get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, out.ContentLength, nil
}

// Name extracts a human-readable name from a source path or URL.
func Name(src string) string {
	if i := strings.IndexByte(src, '?'); i >= 0 {
		src = src[:i]
	}
	return filepath.Base(src)
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.n += int64(n)
	return n, err
}

type progressReader struct {
	reader     io.Reader
	downloaded int64
	total      int64
	callback   func(downloaded, total int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		pr.callback(pr.downloaded, pr.total)
	}
	return n, err
}
