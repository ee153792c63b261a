package cloudinary

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// Client wraps Cloudinary image upload with delivery optimization for the
// product catalog.
type Client interface {
	UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (url string, err error)
}

const (
	imageWidth = 800
	imageEager = "q_auto,f_auto,w_800,c_fill"
)

var eagerAsyncFalse = false

// BuildOptimizedImageURL returns a delivery URL with transformations applied
// for an existing public ID.
func BuildOptimizedImageURL(cloudName, publicID string, width int) string {
	if width <= 0 {
		width = imageWidth
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/q_auto,f_auto,w_%d,c_fill/%s",
		cloudName, width, publicID)
}

type clientImpl struct {
	cloudName string
	uploader  *uploader.API
}

func (c *clientImpl) UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (string, error) {
	result, err := c.uploader.Upload(ctx, file, uploader.UploadParams{
		Folder:     folder,
		PublicID:   publicID,
		Eager:      imageEager,
		EagerAsync: &eagerAsyncFalse,
	})
	if err != nil {
		return "", err
	}
	if len(result.Eager) > 0 && result.Eager[0].SecureURL != "" {
		return result.Eager[0].SecureURL, nil
	}
	return result.SecureURL, nil
}

// NewClientFromParams builds a Client from Cloudinary credentials.
func NewClientFromParams(cloudName, apiKey, apiSecret string) (Client, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &clientImpl{cloudName: cloudName, uploader: up}, nil
}
