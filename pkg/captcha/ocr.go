package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cfmmcdl/pkg/logger"
)

// OCRClient is an HTTP client for a ddddocr-compatible OCR sidecar. The
// sidecar accepts a base64 image and answers with the recognized text.
type OCRClient struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

// NewOCRClient creates an OCR solver talking to the sidecar at baseURL.
func NewOCRClient(baseURL string, timeout time.Duration, log logger.Logger) *OCRClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &OCRClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.WithField("client", "ocr"),
	}
}

// Request/response types (mirror the sidecar's API).

type ocrRequest struct {
	Image string `json:"image"` // base64-encoded image bytes
}

type ocrResponse struct {
	Success bool    `json:"success"`
	Data    ocrData `json:"data"`
	Error   *string `json:"error"`
}

type ocrData struct {
	Text string `json:"text"`
}

// Solve sends the image to the sidecar's /ocr endpoint.
func (c *OCRClient) Solve(ctx context.Context, image []byte) (string, error) {
	payload, err := json.Marshal(ocrRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read OCR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR service returned status %d", resp.StatusCode)
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse OCR response: %w", err)
	}
	if !parsed.Success {
		msg := "unknown error"
		if parsed.Error != nil {
			msg = *parsed.Error
		}
		return "", fmt.Errorf("OCR service error: %s", msg)
	}

	text := strings.TrimSpace(parsed.Data.Text)
	c.log.DebugWithFields("captcha recognized", map[string]interface{}{
		"image_bytes": len(image),
		"text_len":    len(text),
		"elapsed":     time.Since(start),
	})

	if text == "" {
		return "", fmt.Errorf("OCR service returned empty text")
	}
	return text, nil
}
