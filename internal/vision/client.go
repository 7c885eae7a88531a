// Package vision delegates face comparison to an external multimodal
// model behind a narrow interface. No face recognition happens in-process.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the inference endpoint is missing its
// API key. Callers fail fast instead of crashing mid-scan.
var ErrNotConfigured = errors.New("vision service not configured")

// Verdict is the structured comparison result.
type Verdict struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
}

// Comparer compares two images and returns a match verdict.
type Comparer interface {
	Compare(ctx context.Context, imageA, imageB string) (Verdict, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint with two
// images and a strict prompt requesting a JSON verdict.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

// New creates a client. Vision calls can be slow, so the timeout is generous.
func New(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

const comparePrompt = `You are a face verification system. Compare the two photos and decide whether they show the same person. Respond with only a JSON object of the form {"match": true or false, "confidence": number between 0 and 1} and nothing else.`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// Compare submits both images to the model and parses the JSON verdict
// from the reply.
func (c *Client) Compare(ctx context.Context, imageA, imageB string) (Verdict, error) {
	if c.APIKey == "" {
		return Verdict{}, ErrNotConfigured
	}

	payload := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: comparePrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: imageA}},
				{Type: "image_url", ImageURL: &imageURL{URL: imageB}},
			},
		}},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return Verdict{}, fmt.Errorf("vision service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verdict{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Verdict{}, errors.New("vision service returned no choices")
	}

	return parseVerdict(out.Choices[0].Message.Content)
}

// parseVerdict extracts the JSON verdict from the model reply, tolerating
// markdown code fences around it.
func parseVerdict(content string) (Verdict, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	var v Verdict
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return Verdict{}, fmt.Errorf("unparseable verdict %q: %w", content, err)
	}
	return v, nil
}
