package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	prompt     string
	maxTokens  int
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		prompt:     cfg.Prompt,
		maxTokens:  cfg.MaxTokens,
		logger:     logger.With("component", "vision-client"),
	}
}

func (c *Client) Model() string {
	return c.model
}

type preloadRequest struct {
	ModelID string `json:"model_id"`
}

type pipelineResponse struct {
	Description    string       `json:"description"`
	Detections     []Detection  `json:"detections"`
	DetectionCount *int         `json:"detection_count"`
	Latency        StageLatency `json:"latency_ms"`
	Error          string       `json:"error"`
}

// Preload asks the backend to load the model ahead of the first real request.
// The result is advisory; callers must not block the pipeline on its failure.
func (c *Client) Preload(ctx context.Context, modelID string) (*PreloadResponse, error) {
	if modelID == "" {
		modelID = c.model
	}

	body, err := json.Marshal(preloadRequest{ModelID: modelID})
	if err != nil {
		return nil, fmt.Errorf("marshal preload request: %w", err)
	}

	endpoint := c.baseURL + "/vision/preload?" + url.Values{"model_id": {modelID}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create preload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "preload", Err: err}
	}
	defer resp.Body.Close()

	var out PreloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &InferenceError{Op: "preload", StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}

	if resp.StatusCode != http.StatusOK || out.Status == "error" {
		msg := out.Message
		if msg == "" {
			msg = "model preload failed"
		}
		return &out, &InferenceError{Op: "preload", StatusCode: resp.StatusCode, Message: msg}
	}

	c.logger.Info("model preloaded",
		"model", modelID,
		"status", out.Status,
		"load_time_seconds", out.LoadTimeSeconds,
		"elapsed", time.Since(start))

	return &out, nil
}

// Analyze posts one frame to the detector + describer pipeline. Partial answers
// (detections without description or the reverse) are returned without error.
func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	if req.Frame == nil || len(req.Frame.Data) == 0 {
		return nil, &CaptureError{Reason: "no frame data provided"}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = c.prompt
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	body, contentType, err := encodePipelineForm(model, prompt, maxTokens, req.Frame.Data)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vision/pipeline", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "pipeline", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "pipeline", Err: err}
	}
	roundTrip := time.Since(start)

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &InferenceError{Op: "pipeline", StatusCode: resp.StatusCode, Message: "empty response body"}
	}

	var payload pipelineResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &InferenceError{Op: "pipeline", StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}

	result := payload.toResult(req.Frame, roundTrip)

	c.logger.Debug("pipeline response",
		"status", resp.StatusCode,
		"detections", len(result.Detections),
		"description_len", len(result.Description),
		"yolo_ms", result.Latency.YOLO,
		"llava_ms", result.Latency.LLaVA,
		"round_trip", roundTrip)

	if result.Description == "" && len(result.Detections) == 0 {
		msg := payload.Error
		if msg == "" && resp.StatusCode >= http.StatusBadRequest {
			msg = http.StatusText(resp.StatusCode)
		}
		if msg == "" {
			msg = "empty analysis"
		}
		return result, &InferenceError{Op: "pipeline", StatusCode: resp.StatusCode, Message: msg}
	}

	return result, nil
}

// Health reports whether the inference backend answers its health route.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "health", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &InferenceError{Op: "health", StatusCode: resp.StatusCode, Message: "unhealthy"}
	}
	return nil
}

func (p pipelineResponse) toResult(frame *Frame, roundTrip time.Duration) *AnalysisResult {
	count := len(p.Detections)
	if p.DetectionCount != nil {
		count = *p.DetectionCount
	}

	return &AnalysisResult{
		Description:    p.Description,
		Detections:     p.Detections,
		DetectionCount: count,
		Latency:        p.Latency,
		Error:          p.Error,
		FrameWidth:     frame.Width,
		FrameHeight:    frame.Height,
		Timestamp:      frame.Timestamp,
		RoundTrip:      roundTrip,
	}
}

func encodePipelineForm(model, prompt string, maxTokens int, image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"model", model},
		{"prompt", prompt},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="frame.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}

	if err := w.WriteField("max_tokens", strconv.Itoa(maxTokens)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}
