package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// Valid minimal PNG data for 1x1 transparent pixel
var pngData = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, // 1x1 dimensions
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, // bit depth, color type, etc.
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41, // IDAT chunk start
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00, // compressed data
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00, // compressed data end
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE, // IEND chunk
	0x42, 0x60, 0x82,
}

func newFetcher() *HTTPImageFetcher {
	return NewHTTPImageFetcher(5*time.Second, 1<<20, WithRetryBackoff(10*time.Millisecond), WithPrivateAddresses())
}

func TestHTTPImageFetcher_RetryLogic(t *testing.T) {
	tests := []struct {
		name          string
		responses     []int // Status codes to return in sequence
		expectRetries int32 // Expected number of requests
		expectError   bool
		errorContains string
	}{
		{
			name:          "Success on first attempt",
			responses:     []int{200},
			expectRetries: 1,
		},
		{
			name:          "Success on second attempt after 5xx",
			responses:     []int{500, 200},
			expectRetries: 2,
		},
		{
			name:          "4xx client error - no retry",
			responses:     []int{404},
			expectRetries: 1,
			expectError:   true,
			errorContains: "client error: status code 404",
		},
		{
			name:          "4xx after 5xx - should retry until 4xx then stop",
			responses:     []int{500, 404},
			expectRetries: 2,
			expectError:   true,
			errorContains: "client error: status code 404",
		},
		{
			name:          "All 5xx errors - retry all attempts",
			responses:     []int{500, 502, 503},
			expectRetries: 3,
			expectError:   true,
			errorContains: "server error: status code 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestCount int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&requestCount, 1) - 1
				if int(n) >= len(tt.responses) {
					w.WriteHeader(500)
					w.Write([]byte("Unexpected request"))
					return
				}
				statusCode := tt.responses[n]
				if statusCode == 200 {
					w.Header().Set("Content-Type", "image/png")
					w.Write(pngData)
					return
				}
				w.WriteHeader(statusCode)
				w.Write([]byte(fmt.Sprintf("Error %d", statusCode)))
			}))
			defer server.Close()

			blob, err := newFetcher().FetchImage(context.Background(), server.URL+"/products/mouse.png")

			if got := atomic.LoadInt32(&requestCount); got != tt.expectRetries {
				t.Errorf("Expected %d requests, got %d", tt.expectRetries, got)
			}

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error, but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain '%s', got: %s", tt.errorContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %s", err.Error())
			}
			if blob.FileName != "mouse.png" {
				t.Errorf("Expected file name mouse.png, got %s", blob.FileName)
			}
			if blob.ContentType != "image/png" {
				t.Errorf("Expected image/png, got %s", blob.ContentType)
			}
			if len(blob.Data) != len(pngData) {
				t.Errorf("Expected %d bytes, got %d", len(pngData), len(blob.Data))
			}
		})
	}
}

func TestHTTPImageFetcher_NetworkError_Retry(t *testing.T) {
	var requestCount int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requestCount, 1) < 3 {
			// Simulate network error by closing connection
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		w.Write(pngData)
	}))
	defer server.Close()

	blob, err := newFetcher().FetchImage(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %s", err.Error())
	}
	if got := atomic.LoadInt32(&requestCount); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}
	if blob.FileName != "image.png" {
		t.Errorf("Expected generated name image.png, got %s", blob.FileName)
	}
}

func TestHTTPImageFetcher_SizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngData)
	}))
	defer server.Close()

	fetcher := NewHTTPImageFetcher(5*time.Second, 16, WithPrivateAddresses())
	_, err := fetcher.FetchImage(context.Background(), server.URL)
	if err == nil || !strings.Contains(err.Error(), "exceeds 16 bytes") {
		t.Errorf("Expected size limit error, got: %v", err)
	}
}

func TestHTTPImageFetcher_RefusesInternalAddresses(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.Write(pngData)
	}))
	defer server.Close()

	fetcher := NewHTTPImageFetcher(5*time.Second, 1<<20, WithRetryBackoff(10*time.Millisecond))
	for _, target := range []string{server.URL + "/a.png", strings.Replace(server.URL, "127.0.0.1", "localhost", 1) + "/a.png"} {
		_, err := fetcher.FetchImage(context.Background(), target)
		if !errors.Is(err, ErrBlockedAddress) {
			t.Errorf("Expected blocked address error for %s, got: %v", target, err)
		}
	}
	if got := atomic.LoadInt32(&requestCount); got != 0 {
		t.Errorf("Expected no request to reach the server, got %d", got)
	}
}

func TestHTTPImageFetcher_RefusesNonImage(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(`{"aws_secret":"hunter2"}`))
	}))
	defer server.Close()

	_, err := newFetcher().FetchImage(context.Background(), server.URL+"/a.png")
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("Expected not-an-image error, got: %v", err)
	}
	if got := atomic.LoadInt32(&requestCount); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
}

func TestParseBlobURL(t *testing.T) {
	container, blob, err := ParseBlobURL("https://acct.blob.core.windows.net/catalog/shoes/red.jpg")
	if err != nil {
		t.Fatalf("Expected valid blob URL, got: %v", err)
	}
	if container != "catalog" || blob != "shoes/red.jpg" {
		t.Errorf("Unexpected parts %s / %s", container, blob)
	}

	if _, _, err := ParseBlobURL("https://acct.blob.core.windows.net/catalog"); err == nil {
		t.Error("Expected error for URL without blob name")
	}
}
