package factory

import (
	"context"
	"errors"
	"fmt"

	apperrors "go-product-describer/internal/errors"
	"go-product-describer/internal/storage"
	"go-product-describer/pkg/models"
	"go-product-describer/pkg/validation"
)

// SourceType represents the backend an image is imported from
type SourceType string

const (
	HTTPSource  SourceType = "http"
	AzureSource SourceType = "azure"
)

// SourceFactory picks the image source for an import URL
type SourceFactory interface {
	SourceFor(imageURL string) (storage.ImageSource, SourceType, error)
}

type sourceFactory struct {
	http  storage.ImageSource
	azure storage.ImageSource
}

// NewSourceFactory creates a factory; azure may be nil when no credentials are configured
func NewSourceFactory(http, azure storage.ImageSource) SourceFactory {
	return &sourceFactory{http: http, azure: azure}
}

// SourceFor routes Azure blob URLs to the blob client when it is configured and
// everything else through plain HTTP
func (f *sourceFactory) SourceFor(imageURL string) (storage.ImageSource, SourceType, error) {
	if validation.IsAzureBlobURL(imageURL) && f.azure != nil {
		return f.azure, AzureSource, nil
	}
	if f.http == nil {
		return nil, "", fmt.Errorf("no image source available for %q", imageURL)
	}
	return f.http, HTTPSource, nil
}

// Importer validates an import URL and fetches it through the matching source
type Importer struct {
	validator *validation.URLValidator
	sources   SourceFactory
}

// NewImporter creates an importer that checks URLs with validator before fetching
func NewImporter(validator *validation.URLValidator, sources SourceFactory) *Importer {
	return &Importer{validator: validator, sources: sources}
}

// Import fetches the image behind imageURL. Internal addresses and non-image
// bodies are validation errors.
func (i *Importer) Import(ctx context.Context, imageURL string) (*models.ImageBlob, error) {
	if err := i.validator.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}

	source, kind, err := i.sources.SourceFor(imageURL)
	if err != nil {
		return nil, apperrors.NewInternalError("no image source", err)
	}

	blob, err := source.FetchImage(ctx, imageURL)
	if err != nil {
		if errors.Is(err, storage.ErrBlockedAddress) || errors.Is(err, storage.ErrNotImage) {
			return nil, apperrors.NewValidationError("URL does not point at a public image", err)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeoutError(fmt.Sprintf("%s image import timed out", kind), err)
		}
		return nil, apperrors.NewNetworkError(fmt.Sprintf("failed to import image from %s source", kind), err)
	}
	return blob, nil
}
