package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go-product-describer/pkg/models"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureBlobSource imports images from Azure Blob Storage using a shared key
type AzureBlobSource struct {
	client   *azblob.Client
	maxBytes int64
}

// NewAzureBlobSource creates a blob client for accountName authenticated with a shared key
func NewAzureBlobSource(accountName, accountKey string, maxBytes int64) (*AzureBlobSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &AzureBlobSource{client: client, maxBytes: maxBytes}, nil
}

// FetchImage downloads https://<account>.blob.core.windows.net/<container>/<blob>
func (s *AzureBlobSource) FetchImage(ctx context.Context, blobURL string) (*models.ImageBlob, error) {
	container, blobName, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	body := resp.Body
	defer body.Close()

	data, err := readLimited(body, s.maxBytes)
	if err != nil {
		return nil, err
	}

	contentType, err := detectImage(data)
	if err != nil {
		return nil, err
	}
	if resp.ContentType != nil && strings.HasPrefix(*resp.ContentType, "image/") {
		contentType = *resp.ContentType
	}

	return &models.ImageBlob{
		FileName:    path.Base(blobName),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// ParseBlobURL splits a blob URL into container and blob name
func ParseBlobURL(blobURL string) (string, string, error) {
	parts, err := azblob.ParseURL(blobURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}
	if parts.ContainerName == "" || parts.BlobName == "" {
		return "", "", fmt.Errorf("blob URL must name a container and a blob: %q", blobURL)
	}
	return parts.ContainerName, parts.BlobName, nil
}
