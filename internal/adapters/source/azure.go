package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// Azure implements output.GeometrySource for an Azure Blob Storage container.
type Azure struct {
	client    *azblob.Client
	container string
	prefix    string
}

var _ output.GeometrySource = (*Azure)(nil)

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// NewAzure creates a new Azure source from a connection string or an
// account name and key.
func NewAzure(cfg AzureConfig) (*Azure, error) {
	client, err := newAzureClient(cfg)
	if err != nil {
		return nil, &domain.SourceError{Operation: "connect", Err: err}
	}

	return &Azure{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func newAzureClient(cfg AzureConfig) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	return azblob.NewClientWithSharedKeyCredential(url, cred, nil)
}

// List returns all geometry blobs under the prefix.
func (s *Azure) List(ctx context.Context) ([]output.SourceObject, error) {
	var objects []output.SourceObject

	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &s.prefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, &domain.SourceError{Operation: "list", Err: err}
		}

		for _, blob := range page.Segment.BlobItems {
			if obj, ok := s.blobToSourceObject(blob); ok {
				objects = append(objects, obj)
			}
		}
	}

	return objects, nil
}

// blobToSourceObject converts a blob listing entry. Non-geometry blobs are
// skipped.
func (s *Azure) blobToSourceObject(blob *container.BlobItem) (output.SourceObject, bool) {
	if blob.Name == nil {
		return output.SourceObject{}, false
	}
	key := relativeKey(*blob.Name, s.prefix)
	if !output.IsInputFile(key) {
		return output.SourceObject{}, false
	}

	obj := output.SourceObject{Key: key}
	if p := blob.Properties; p != nil {
		if p.ContentLength != nil {
			obj.Size = *p.ContentLength
		}
		if p.LastModified != nil {
			obj.LastModified = p.LastModified.UnixNano()
		}
		if p.ETag != nil {
			obj.ETag = string(*p.ETag)
		}
	}
	return obj, true
}

// GetReader returns a reader for the given blob.
func (s *Azure) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, fullKey(s.prefix, key), nil)
	if err != nil {
		return nil, &domain.SourceError{Operation: "read", Key: key, Err: err}
	}
	return resp.Body, nil
}

// Exists checks if a blob exists.
func (s *Azure) Exists(ctx context.Context, key string) (bool, error) {
	blob := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(fullKey(s.prefix, key))
	_, err := blob.GetProperties(ctx, nil)
	switch {
	case err == nil:
		return true, nil
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return false, nil
	}
	return false, &domain.SourceError{Operation: "stat", Key: key, Err: err}
}
