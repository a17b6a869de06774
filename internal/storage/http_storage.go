package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"go-product-describer/pkg/models"
	"go-product-describer/pkg/validation"

	"github.com/gabriel-vasile/mimetype"
)

// ImageSource imports a product image from a remote location
type ImageSource interface {
	FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error)
}

const maxFetchAttempts = 3

var (
	// ErrBlockedAddress is returned when an import resolves to an internal address
	ErrBlockedAddress = errors.New("address is not publicly routable")
	// ErrNotImage is returned when the fetched body is not an image
	ErrNotImage = errors.New("content is not an image")
)

// HTTPImageFetcher downloads images over HTTP(S), retrying transient failures.
// Connections to loopback, private and link-local addresses are refused at dial
// time, so redirects and DNS answers are checked as well.
type HTTPImageFetcher struct {
	client       *http.Client
	maxBytes     int64
	backoff      time.Duration
	allowPrivate bool
}

// FetcherOption customizes an HTTPImageFetcher
type FetcherOption func(*HTTPImageFetcher)

// WithRetryBackoff sets the base delay between attempts; attempt n waits n*d
func WithRetryBackoff(d time.Duration) FetcherOption {
	return func(f *HTTPImageFetcher) {
		f.backoff = d
	}
}

// WithPrivateAddresses lets the fetcher reach internal addresses
func WithPrivateAddresses() FetcherOption {
	return func(f *HTTPImageFetcher) {
		f.allowPrivate = true
	}
}

// NewHTTPImageFetcher creates a fetcher bounded by timeout and maxBytes per image
func NewHTTPImageFetcher(timeout time.Duration, maxBytes int64, opts ...FetcherOption) *HTTPImageFetcher {
	f := &HTTPImageFetcher{
		maxBytes: maxBytes,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !f.allowPrivate {
		dialer.Control = rejectInternalAddress
	}

	transport := &http.Transport{
		DialContext:            dialer.DialContext,
		MaxIdleConns:           10,
		MaxIdleConnsPerHost:    2,
		IdleConnTimeout:        30 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	f.client = &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects (limit: 3)")
			}
			return nil
		},
	}
	return f
}

// rejectInternalAddress runs after DNS resolution on every outgoing connection
func rejectInternalAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !validation.IsPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// FetchImage downloads imageURL, retrying 5xx and connection failures
func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (*models.ImageBlob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Product-Describer/1.0")

	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * h.backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("image fetch cancelled: %w", ctx.Err())
			}
		}

		blob, retryable, err := h.fetchOnce(req)
		if err == nil {
			blob.FileName = fileNameFromURL(imageURL, blob)
			return blob, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", maxFetchAttempts, lastErr)
}

// fetchOnce performs a single attempt; 4xx responses are not worth retrying
func (h *HTTPImageFetcher) fetchOnce(req *http.Request) (*models.ImageBlob, bool, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, !errors.Is(err, ErrBlockedAddress), err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		return nil, false, err
	}
	contentType, err := detectImage(data)
	if err != nil {
		return nil, false, err
	}
	return &models.ImageBlob{
		ContentType: contentType,
		Data:        data,
	}, false, nil
}

// detectImage sniffs the body and refuses anything that is not an image
func detectImage(data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
	return mtype.String(), nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	return data, nil
}

// fileNameFromURL takes the last path segment, adding an extension from the sniffed type when missing
func fileNameFromURL(imageURL string, blob *models.ImageBlob) string {
	name := ""
	if u, err := url.Parse(imageURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "/" || name == "." {
		name = "image"
	}
	if path.Ext(name) == "" {
		name += mimetype.Detect(blob.Data).Extension()
	}
	return name
}
