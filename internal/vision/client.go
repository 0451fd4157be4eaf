// Package vision asks an OpenAI-compatible vision model (Ollama by default)
// for descriptive keywords of an image.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// ErrInference is matched by every failure of Extract.
var ErrInference = errors.New("inference failed")

// Config holds the connection settings for the inference service.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:11434. "/v1" is
	// appended when missing.
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// Client implements keywords.Extractor.
type Client struct {
	client openai.Client
	model  string
}

type keywordReply struct {
	Keywords []string `json:"keywords"`
}

// New creates a client for cfg.
func New(cfg Config) *Client {
	apiKey := cfg.APIKey
	if apiKey == "" {
		// Ollama ignores the key but the SDK always sends one.
		apiKey = "ollama"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(NormalizeBaseURL(cfg.BaseURL)),
		option.WithMaxRetries(cfg.Retries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// NormalizeBaseURL makes sure the URL points at the OpenAI-compatible API root.
func NormalizeBaseURL(baseURL string) string {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u + "/"
}

// Extract sends image and prompt to the model and returns the keywords it
// replied with, unfiltered. The model is constrained to a JSON schema holding
// a single list of at most maxKeywords strings; any other reply is an error.
// Callers dedupe and bound the list.
func (c *Client) Extract(ctx context.Context, image []byte, prompt string, maxKeywords int) ([]string, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInference)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(image),
				}),
			}),
		},
		Model:       c.model,
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "file_keywords",
					Schema: keywordSchema(maxKeywords),
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: model returned no choices", ErrInference)
	}

	return parseReply(resp.Choices[0].Message.Content)
}

func parseReply(content string) ([]string, error) {
	raw := strings.TrimSpace(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrInference)
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var reply keywordReply
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: reply is not a keyword list: %w", ErrInference, err)
	}
	if reply.Keywords == nil {
		return nil, fmt.Errorf("%w: reply has no keywords field", ErrInference)
	}
	return reply.Keywords, nil
}

func keywordSchema(maxKeywords int) map[string]any {
	list := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	if maxKeywords > 0 {
		list["maxItems"] = maxKeywords
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"keywords": list,
		},
		"required":             []string{"keywords"},
		"additionalProperties": false,
	}
}

func dataURL(image []byte) string {
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	var b bytes.Buffer
	b.WriteString("data:")
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(image))
	return b.String()
}
