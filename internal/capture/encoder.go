package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/kozaktomas/facegate/internal/biometric"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	defaultEncoderURL = "http://localhost:8000"
	// DefaultMaxSide is the longest image side sent to the encoder.
	DefaultMaxSide = 1024
	jpegQuality    = 90
)

// FaceDetection is a single face found by the encoder.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse is the body returned by POST /embed/face.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// EncoderClient turns images into face encodings using the embedding server.
type EncoderClient struct {
	baseURL string
	maxSide int
	client  *http.Client
}

// EncoderOption configures an EncoderClient.
type EncoderOption func(*EncoderClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) EncoderOption {
	return func(e *EncoderClient) {
		e.client = c
	}
}

// WithMaxSide sets the downscale limit. Zero or less disables downscaling.
func WithMaxSide(px int) EncoderOption {
	return func(e *EncoderClient) {
		e.maxSide = px
	}
}

// NewEncoderClient creates a client for the server at baseURL.
func NewEncoderClient(baseURL string, opts ...EncoderOption) *EncoderClient {
	if baseURL == "" {
		baseURL = defaultEncoderURL
	}
	c := &EncoderClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		maxSide: DefaultMaxSide,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DetectFaces uploads imageData and returns every face the server found.
func (c *EncoderClient) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	data, err := c.prepare(imageData)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", data)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, &CaptureError{Op: "encode", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return &faceResp, nil
}

// Encode returns the encoding of the most confidently detected face in imageData.
func (c *EncoderClient) Encode(ctx context.Context, imageData []byte) (biometric.Encoding, error) {
	resp, err := c.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}

	best := -1
	for i, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		if best < 0 || f.DetScore > resp.Faces[best].DetScore {
			best = i
		}
	}
	if best < 0 {
		return nil, &CaptureError{Op: "detect", Err: ErrNoFace}
	}

	emb := resp.Faces[best].Embedding
	enc := make(biometric.Encoding, len(emb))
	for i, v := range emb {
		enc[i] = float64(v)
	}
	return enc, nil
}

// Capturer returns a Capturer that encodes the image read from src on every call.
func (c *EncoderClient) Capturer(src ImageSource) Capturer {
	return CapturerFunc(func(ctx context.Context) (biometric.Encoding, error) {
		data, err := src.Image(ctx)
		if err != nil {
			return nil, err
		}
		return c.Encode(ctx, data)
	})
}

// prepare validates the image and shrinks it so its longest side is at most maxSide.
func (c *EncoderClient) prepare(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &CaptureError{Op: "decode", Err: err}
	}
	if c.maxSide <= 0 || max(cfg.Width, cfg.Height) <= c.maxSide {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &CaptureError{Op: "decode", Err: err}
	}

	w, h := cfg.Width, cfg.Height
	if w >= h {
		h = max(1, h*c.maxSide/w)
		w = c.maxSide
	} else {
		w = max(1, w*c.maxSide/h)
		h = c.maxSide
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, &CaptureError{Op: "resize", Err: err}
	}
	return buf.Bytes(), nil
}

func (c *EncoderClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="capture.jpg"`)
	h.Set("Content-Type", http.DetectContentType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, unavailable("encoder request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("encoder response", err)
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, unavailable("encoder", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	case resp.StatusCode != http.StatusOK:
		return nil, &CaptureError{Op: "encode", Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)}
	}
	return body, nil
}

// ImageSource supplies the raw image for one capture.
type ImageSource interface {
	Image(ctx context.Context) ([]byte, error)
}

// ImageFile reads the image at the given path on every call, so a camera
// daemon can keep overwriting the same snapshot file.
type ImageFile string

// Image reads the file.
func (p ImageFile) Image(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(string(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, unavailable("read image", err)
	}
	if err != nil {
		return nil, &CaptureError{Op: "read image", Err: err}
	}
	return data, nil
}

// ImageBytes is an in-memory image, used for uploads.
type ImageBytes []byte

// Image returns the bytes unchanged.
func (b ImageBytes) Image(ctx context.Context) ([]byte, error) {
	if len(b) == 0 {
		return nil, &CaptureError{Op: "read image", Err: errors.New("empty image")}
	}
	return b, nil
}
