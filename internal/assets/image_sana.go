package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// SanaClient - legacy провайдер изображений: собственный SANA сервер по HTTP.
type SanaClient struct {
	baseURL string
	ratio   string
	client  *http.Client
	logger  *zap.Logger
}

type sanaRequest struct {
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio"`
}

// NewSanaClient создает клиента SANA. Таймаут задается контекстом вызова.
func NewSanaClient(baseURL string, log *zap.Logger) *SanaClient {
	return &SanaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		ratio:   "4:3",
		client:  &http.Client{},
		logger:  log.Named("SanaClient"),
	}
}

func (c *SanaClient) Name() string { return "sana" }

func (c *SanaClient) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	body, err := json.Marshal(sanaRequest{Prompt: req.FullPrompt(), Ratio: c.ratio})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpoint := c.baseURL + "/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/*")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: http request failed: %v", ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("SANA API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", truncate(data, 512)))
		return nil, fmt.Errorf("%w: API returned status %d", ErrImageGenerationFailed, resp.StatusCode)
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrImageGenerationFailed, readErr)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: API returned empty data", ErrImageGenerationFailed)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	return &ImageResult{Data: data, ContentType: contentType}, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
