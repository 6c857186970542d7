package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vincent-petithory/dataurl"
)

const (
	downloadTimeout = 60 * time.Second
	downloadRetries = 2
)

// Extensions the model is known to accept as image input. Anything else is
// passed through with a warning.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// ImageFetcher materializes the image source of an i2v request as a local
// file the generator can read.
type ImageFetcher struct {
	client *resty.Client
}

func NewImageFetcher() *ImageFetcher {
	return &ImageFetcher{
		client: resty.New().
			SetTimeout(downloadTimeout).
			SetRetryCount(downloadRetries),
	}
}

const dataURLPrefix = "data:"

// Fetch resolves the request's image source into dir and returns the local
// path. Callers must have validated the request first.
func (f *ImageFetcher) Fetch(ctx context.Context, req GenerationRequest, dir string) (string, error) {
	switch {
	case hasDataURLPrefix(req.ImageURL):
		return saveDataURL(req.ImageURL, dir)
	case req.ImageURL != "":
		return f.download(ctx, req.ImageURL, dir)
	case req.ImagePath != "":
		return localImage(req.ImagePath)
	}
	return "", invalidf("for i2v task, provide one of \"image_url\" or \"image_path\"")
}

func (f *ImageFetcher) download(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid image_url: %w", err)
	}

	ext := path.Ext(u.Path)
	if ext == "" {
		ext = ".jpg"
	}
	dest := filepath.Join(dir, "input_image"+ext)

	slog.Info("Downloading input image", slog.String("url", rawURL))

	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(dest).
		Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("image download failed: %w", err)
	}
	if resp.IsError() {
		// resty writes the error body to the output file too.
		os.Remove(dest)
		return "", fmt.Errorf("image download failed: status %d", resp.StatusCode())
	}

	slog.Info("Image downloaded", slog.String("path", dest))
	return dest, nil
}

// The scheme is case-insensitive per RFC 2397.
func hasDataURLPrefix(s string) bool {
	return len(s) >= len(dataURLPrefix) && strings.EqualFold(s[:len(dataURLPrefix)], dataURLPrefix)
}

// saveDataURL decodes an RFC 2397 data URL into dir.
func saveDataURL(raw, dir string) (string, error) {
	// The decoder only accepts a lowercase scheme.
	raw = dataURLPrefix + raw[len(dataURLPrefix):]
	du, err := dataurl.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decoding image data URL: %w", err)
	}

	dest := filepath.Join(dir, "input_image"+extensionForMediaType(du.MediaType.ContentType()))
	if err := os.WriteFile(dest, du.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return dest, nil
}

func extensionForMediaType(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}

func localImage(imagePath string) (string, error) {
	info, err := os.Stat(imagePath)
	if err != nil {
		return "", fmt.Errorf("image file not found: %s", imagePath)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("image path is not a regular file: %s", imagePath)
	}
	if ext := strings.ToLower(filepath.Ext(imagePath)); !imageExtensions[ext] {
		slog.Warn("Unusual image extension", slog.String("path", imagePath), slog.String("ext", ext))
	}
	return imagePath, nil
}
