package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/nvr-ai/go-assist/common"
	"github.com/nvr-ai/go-assist/images"
	"github.com/pkg/errors"
)

// CloudBox is one detection returned by the cloud service.
type CloudBox struct {
	Label string
	Score float32
	// X, Y, W, H locate the box in the service's coordinate space.
	X, Y, W, H float32
}

// CloudDetector detects objects in a whole frame remotely.
type CloudDetector interface {
	DetectFrame(ctx context.Context, img image.Image) ([]CloudBox, error)
}

// cloudResult is the wire format of one detection.
type cloudResult struct {
	Label    string    `json:"label"`
	Score    float32   `json:"score"`
	Location []float32 `json:"location"`
}

// HTTPCloudDetector uploads frames as multipart JPEG to a detection endpoint.
type HTTPCloudDetector struct {
	url     string
	quality int
	client  *http.Client
}

// NewHTTPCloudDetector creates a cloud client.
//
// Arguments:
//   - cfg: Endpoint, timeout and JPEG quality.
//   - client: HTTP client, nil for one with cfg.Timeout.
//
// Returns:
//   - *HTTPCloudDetector: The client.
func NewHTTPCloudDetector(cfg CloudConfig, client *http.Client) *HTTPCloudDetector {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	quality := cfg.JPEGQuality
	if quality == 0 {
		quality = 90
	}
	return &HTTPCloudDetector{url: cfg.URL, quality: quality, client: client}
}

// DetectFrame posts the frame and parses the detections.
//
// The request is multipart/form-data with the JPEG in field "file" named "frame.jpg". The
// response is a JSON array of {"label", "score", "location": [x, y, w, h]}.
//
// Arguments:
//   - ctx: Cancels the request.
//   - img: The frame.
//
// Returns:
//   - []CloudBox: The detections, possibly empty.
//   - error: ErrService wrapped with the cause.
func (d *HTTPCloudDetector) DetectFrame(ctx context.Context, img image.Image) ([]CloudBox, error) {
	jpegData, err := images.EncodeJPEG(img, d.quality)
	if err != nil {
		return nil, errors.Wrapf(ErrService, "encode frame: %v", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, errors.Wrapf(ErrService, "create form file: %v", err)
	}
	if _, err := part.Write(jpegData); err != nil {
		return nil, errors.Wrapf(ErrService, "write form file: %v", err)
	}
	if err := form.Close(); err != nil {
		return nil, errors.Wrapf(ErrService, "close form: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return nil, errors.Wrapf(ErrService, "build request: %v", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrService, "post frame: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, errors.Wrapf(ErrService, "status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var results []cloudResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.Wrapf(ErrService, "decode response: %v", err)
	}

	boxes := make([]CloudBox, 0, len(results))
	for i, r := range results {
		if len(r.Location) != 4 {
			return nil, errors.Wrapf(ErrService, "result %d: location has %d values", i, len(r.Location))
		}
		boxes = append(boxes, CloudBox{
			Label: r.Label,
			Score: r.Score,
			X:     r.Location[0],
			Y:     r.Location[1],
			W:     r.Location[2],
			H:     r.Location[3],
		})
	}
	return boxes, nil
}

// ToBoundingBoxes maps cloud detections of a width x height frame into normalized boxes.
//
// Boxes are clamped to [0,1] and dropped when they collapse to zero area. Class indexes are
// UnknownClassID because the service uses its own label space.
//
// Arguments:
//   - boxes: The cloud detections.
//   - width, height: The uploaded frame size in pixels.
//   - space: How the service reports locations.
//
// Returns:
//   - []common.BoundingBox: The normalized boxes.
func ToBoundingBoxes(boxes []CloudBox, width, height int, space CoordinateSpace) []common.BoundingBox {
	sx, sy := float32(1), float32(1)
	if space != CoordinateNormalized {
		if width <= 0 || height <= 0 {
			return nil
		}
		sx, sy = 1/float32(width), 1/float32(height)
	}

	out := make([]common.BoundingBox, 0, len(boxes))
	for _, b := range boxes {
		x1, y1 := b.X*sx, b.Y*sy
		box := common.NewBoundingBox(x1, y1, x1+b.W*sx, y1+b.H*sy,
			b.Score, common.UnknownClassID, b.Label).Clamp()
		if !box.Valid() {
			continue
		}
		out = append(out, box)
	}
	return out
}

// requestTimeout bounds a cloud call when the caller's context has no deadline.
func requestTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
