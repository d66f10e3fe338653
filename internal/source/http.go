package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
)

type StatusError struct {
	URL  string
	Code int
}

func (s *StatusError) Error() string {
	return fmt.Sprintf("source: %s returned %d %s", s.URL, s.Code, http.StatusText(s.Code))
}

// transient tells whether a request that failed with code is worth retrying.
func transient(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func statusErr(url string, code int) error {
	err := &StatusError{URL: url, Code: code}
	if transient(code) {
		return err
	}
	return backoff.Permanent(err)
}

type httpFetcher struct {
	client *http.Client
	url    string
}

func (h *httpFetcher) kind() string { return "http" }

func (h *httpFetcher) size(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	res, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK && res.ContentLength >= 0 {
		return res.ContentLength, nil
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusMethodNotAllowed {
		return 0, statusErr(h.url, res.StatusCode)
	}
	// Some servers do not answer HEAD or omit Content-Length, ask for the
	// first byte and read the total from Content-Range.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Range", "bytes=0-0")
	res, err = h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusPartialContent:
		return parseContentRange(res.Header.Get("Content-Range"))
	case http.StatusOK:
		if res.ContentLength >= 0 {
			return res.ContentLength, nil
		}
		return io.Copy(io.Discard, res.Body)
	default:
		return 0, statusErr(h.url, res.StatusCode)
	}
}

func (h *httpFetcher) fetch(ctx context.Context, off, n int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))
	res, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// range ignored, skip to the block
		if _, err := io.CopyN(io.Discard, res.Body, off); err != nil {
			return nil, err
		}
	default:
		return nil, statusErr(h.url, res.StatusCode)
	}
	return readFull(res.Body, n)
}

// parseContentRange returns the complete length from a header of the form
// "bytes 0-0/1234".
func parseContentRange(v string) (int64, error) {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "*" {
		return 0, backoff.Permanent(fmt.Errorf("source: unusable Content-Range %q", v))
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("source: invalid Content-Range %q", v))
	}
	return size, nil
}
