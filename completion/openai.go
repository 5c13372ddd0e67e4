package completion

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI-compatible provider
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIClient answers turns with the chat completion API. It is the
// alternate provider behind the same Completer contract.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds an OpenAI-backed Completer
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), model: model}
}

// Complete sends the turns and returns the first choice's content
func (c *OpenAIClient) Complete(ctx context.Context, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", errNoTurns
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: lo.Map(turns, func(t Turn, _ int) openai.ChatCompletionMessage {
			role := openai.ChatMessageRoleUser
			if t.Role == RoleModel {
				role = openai.ChatMessageRoleAssistant
			}
			return openai.ChatCompletionMessage{Role: role, Content: t.Text}
		}),
	})
	if err != nil {
		return "", &TransportError{StatusCode: statusOf(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "no choices"}
	}
	if resp.Choices[0].Message.Content == "" {
		return "", &MalformedResponseError{Reason: "first choice has no content"}
	}
	return resp.Choices[0].Message.Content, nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
