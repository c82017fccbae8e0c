package imageset

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFetchTimeout is the default timeout for image downloads
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxImageSize is the default maximum image size (10MB)
	DefaultMaxImageSize = 10 * 1024 * 1024
)

// ErrImageTooLarge is returned when an image exceeds the fetcher's size limit.
var ErrImageTooLarge = errors.New("image too large")

// Blob is the raw content of one image.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Loader loads the content of an image.
type Loader interface {
	Load(ctx context.Context, img Image) (*Blob, error)
}

// Fetcher loads images from http(s) URLs, file:// URLs, local paths and
// base64 data URIs.
type Fetcher struct {
	client  *resty.Client
	maxSize int64
}

// NewFetcher creates a Fetcher with default settings.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:  resty.New().SetDebug(false).SetTimeout(DefaultFetchTimeout),
		maxSize: DefaultMaxImageSize,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (f *Fetcher) WithTimeout(timeout time.Duration) *Fetcher {
	f.client.SetTimeout(timeout)
	return f
}

// WithMaxSize sets a custom maximum image size.
func (f *Fetcher) WithMaxSize(maxSize int64) *Fetcher {
	f.maxSize = maxSize
	return f
}

// Load implements Loader.
func (f *Fetcher) Load(ctx context.Context, img Image) (*Blob, error) {
	blob, err := f.Fetch(ctx, img.URL)
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", img.Index, err)
	}
	return blob, nil
}

// Fetch loads a single locator.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (*Blob, error) {
	switch {
	case strings.HasPrefix(locator, "data:"):
		return f.fromDataURI(locator)
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return f.fromURL(ctx, locator)
	case strings.HasPrefix(locator, "file://"):
		u, err := url.Parse(locator)
		if err != nil {
			return nil, fmt.Errorf("invalid file url: %w", err)
		}
		return f.fromFile(u.Path)
	default:
		return f.fromFile(locator)
	}
}

func (f *Fetcher) fromURL(ctx context.Context, imageURL string) (*Blob, error) {
	res, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", res.StatusCode())
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("invalid content type: expected image/*, got %s", contentType)
	}

	if res.RawResponse.ContentLength > f.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrImageTooLarge, res.RawResponse.ContentLength, f.maxSize)
	}

	data, err := f.readLimited(body)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("url", imageURL).Int("bytes", len(data)).Msg("downloaded image")
	return &Blob{Data: data, MIMEType: mimeType(contentType, data)}, nil
}

func (f *Fetcher) fromFile(path string) (*Blob, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	data, err := f.readLimited(file)
	if err != nil {
		return nil, err
	}
	return &Blob{Data: data, MIMEType: mimeType("", data)}, nil
}

// fromDataURI decodes data:image/png;base64,.... URIs.
func (f *Fetcher) fromDataURI(uri string) (*Blob, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("unsupported data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data uri: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("%w: exceeds limit of %d bytes", ErrImageTooLarge, f.maxSize)
	}
	return &Blob{Data: data, MIMEType: mimeType(strings.TrimSuffix(header, ";base64"), data)}, nil
}

// readLimited enforces the size limit even if Content-Length is missing or wrong.
func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("%w: exceeds limit of %d bytes", ErrImageTooLarge, f.maxSize)
	}
	return data, nil
}

func mimeType(declared string, data []byte) string {
	if strings.HasPrefix(declared, "image/") {
		mt, _, _ := strings.Cut(declared, ";")
		return strings.TrimSpace(mt)
	}
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	return "image/jpeg"
}

// LoadAll loads the given images with at most limit loads in flight. The
// returned slice is parallel to images. The first failure cancels the rest.
func LoadAll(ctx context.Context, loader Loader, images []Image, limit int) ([]*Blob, error) {
	blobs := make([]*Blob, len(images))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, img := range images {
		g.Go(func() error {
			blob, err := loader.Load(ctx, img)
			if err != nil {
				return err
			}
			blobs[i] = blob
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blobs, nil
}
