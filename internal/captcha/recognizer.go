package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"

	// Decoders for the tile formats the portal serves.
	_ "image/gif"
	_ "image/jpeg"

	"visa-slot-backend/config"
)

// Recognition is the text read from one image and the engine's confidence in it (0..1).
type Recognition struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer extracts text from a single image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (Recognition, error)
}

// recognizeResponse models the OCR service envelope.
type recognizeResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    Recognition `json:"data"`
}

// HTTPRecognizer sends images to an OCR service over HTTP.
type HTTPRecognizer struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewHTTPRecognizer(cfg config.OCRConfig) *HTTPRecognizer {
	return &HTTPRecognizer{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Recognize encodes img as PNG and posts it to the OCR service.
func (h *HTTPRecognizer) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Recognition{}, fmt.Errorf("encode image: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return Recognition{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Recognition{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Recognition{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Recognition{}, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Recognition{}, fmt.Errorf("failed to read response body: %w", err)
	}
	var out recognizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Recognition{}, fmt.Errorf("failed to unmarshal ocr response: %w", err)
	}
	if out.Code != 0 {
		return Recognition{}, fmt.Errorf("ocr service returned code %d: %s", out.Code, out.Message)
	}
	return out.Data, nil
}

// DecodeImage decodes PNG, JPEG or GIF bytes.
func DecodeImage(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeDataURL accepts either a bare base64 payload or a data URL
// ("data:image/png;base64,....") and returns the raw bytes.
func DecodeDataURL(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		_, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, errors.New("malformed data URL")
		}
		s = payload
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return raw, nil
}
