package describer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	apperrors "go-product-describer/internal/errors"
	"go-product-describer/internal/logger"
	"go-product-describer/pkg/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FixedFeaturesPrompt is sent as the features field on every request. The
// features typed into the form are not forwarded.
const FixedFeaturesPrompt = "Give me description for this product"

const maxResponseBytes = 1 << 20

var tracer = otel.Tracer("description-client")

// Request carries the form values sent to the description service
type Request struct {
	Image      models.ImageBlob
	Paragraphs string
	Style      models.Style
	Tone       models.Tone
}

// Describer generates a product description for an image
type Describer interface {
	Describe(ctx context.Context, req Request) (*models.GenerationResult, error)
}

// Client calls the external description service over HTTP
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client posting to <baseURL>/api/generate-description/<pathSegment>
func NewClient(baseURL, pathSegment string, timeout time.Duration) *Client {
	return &Client{
		endpoint: Endpoint(baseURL, pathSegment),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint builds the generate-description URL
func Endpoint(baseURL, pathSegment string) string {
	return fmt.Sprintf("%s/api/generate-description/%s", strings.TrimRight(baseURL, "/"), pathSegment)
}

// Describe issues exactly one multipart POST and normalizes the response.
// There is no retry; a failed attempt is returned to the caller as is.
func (c *Client) Describe(ctx context.Context, req Request) (*models.GenerationResult, error) {
	ctx, span := tracer.Start(ctx, "generate_description", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("description.tone", string(req.Tone)),
		attribute.String("description.style", string(req.Style)),
		attribute.Int("description.image_bytes", len(req.Image.Data)),
	)

	body, contentType, err := buildMultipartBody(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request body")
		return nil, apperrors.NewInternalError("failed to build request body", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create request")
		return nil, apperrors.NewInternalError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json, text/plain, */*")

	logger.WithFields(logrus.Fields{
		"endpoint": c.endpoint,
		"tone":     req.Tone,
		"style":    req.Style,
	}).Debug("Sending description request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send request")
		if isTimeout(err) {
			return nil, apperrors.NewTimeoutError("description service timed out", err)
		}
		return nil, apperrors.NewNetworkError("description service unreachable", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response")
		if isTimeout(err) {
			return nil, apperrors.NewTimeoutError("description service timed out", err)
		}
		return nil, apperrors.NewNetworkError("failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("description service returned status %d: %s", resp.StatusCode, truncate(raw, 200))
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return nil, apperrors.NewNetworkError("description service rejected the request", err)
	}

	payload, err := models.DecodePayload(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "undecodable response")
		return nil, apperrors.NewUnparseableResponseError("description response is not JSON", err)
	}

	result, err := payload.Normalize()
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, models.ErrUnparseablePayload) {
			span.SetStatus(codes.Error, "undecodable response")
			return nil, apperrors.NewUnparseableResponseError("description response is not JSON", err)
		}
		span.SetStatus(codes.Error, "malformed response")
		return nil, apperrors.NewMalformedResponseError("invalid response format", err)
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

func buildMultipartBody(req Request) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := w.CreatePart(imagePartHeader(req.Image))
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(req.Image.Data); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}

	fields := []struct{ name, value string }{
		{"paragraphs", req.Paragraphs},
		{"style", string(req.Style)},
		{"tone", string(req.Tone)},
		{"features", FixedFeaturesPrompt},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func imagePartHeader(img models.ImageBlob) textproto.MIMEHeader {
	contentType := img.ContentType
	fileName := img.FileName
	if contentType == "" || fileName == "" {
		detected := mimetype.Detect(img.Data)
		if contentType == "" {
			contentType = detected.String()
		}
		if fileName == "" {
			fileName = "image" + detected.Extension()
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", contentType)
	return h
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
