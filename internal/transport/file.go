package transport

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/edsrzf/mmap-go"
)

// File reads documents from the local filesystem. Accepts file:// URLs and
// plain paths.
type File struct{}

// Fetch implements Transport.
func (File) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	path, err := filePath(req.URL)
	if err != nil {
		return nil, err
	}

	data, err := readMapped(path)
	if err != nil {
		return nil, err
	}

	return &Response{
		Data: data,
		Timing: []ResourceTiming{{
			Name:         req.URL,
			StartTime:    start,
			Duration:     time.Since(start),
			TransferSize: len(data),
		}},
	}, nil
}

func filePath(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse file url %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return raw, nil
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("%w: remote file host %q", ErrUnsupportedScheme, u.Host)
	}
	return u.Path, nil
}

// readMapped maps the file read-only and copies it out so the mapping can
// be released before returning.
func readMapped(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return []byte{}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %s: %w", path, err)
	}
	defer m.Unmap()

	data := make([]byte, len(m))
	copy(data, m)
	return data, nil
}
