package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voyagent/voyagent/pkg/config"
)

// ChatClient captures the subset of the go-openai client the adapter uses.
// Tests substitute a scripted implementation.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// OpenAIClient implements Client over an OpenAI-compatible chat endpoint.
type OpenAIClient struct {
	chat        ChatClient
	model       string
	temperature *float64
	maxTokens   *int64
}

// NewOpenAIClient builds a client from provider configuration. BaseURL may
// point at any OpenAI-compatible server; APIKeyEnv names the environment
// variable holding the key.
func NewOpenAIClient(cfg config.LLMProviderConfig) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm provider model is required")
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		chat:        openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// NewOpenAIClientWithChat wires a custom ChatClient (tests).
func NewOpenAIClientWithChat(chat ChatClient, model string) *OpenAIClient {
	return &OpenAIClient{chat: chat, model: model}
}

// Complete renders a chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("messages are required")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		if m.Role == RoleTool {
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, msg)
	}

	request := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    encodeTools(req.Tools),
	}
	if c.temperature != nil {
		request.Temperature = float32(*c.temperature)
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}
	if c.maxTokens != nil {
		request.MaxTokens = int(*c.maxTokens)
	}
	if req.JSONResponse {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	switch req.ToolChoice {
	case "", ToolChoiceAuto:
		// Provider default.
	case ToolChoiceNone, ToolChoiceRequired:
		request.ToolChoice = req.ToolChoice
	default:
		return nil, fmt.Errorf("unsupported tool choice %q", req.ToolChoice)
	}

	response, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return translateResponse(response), nil
}

func encodeTools(defs []ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return tools
}

func translateResponse(resp openai.ChatCompletionResponse) *Completion {
	out := &Completion{
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, choice := range resp.Choices {
		msg := choice.Message
		if msg.Content != "" {
			out.Content += msg.Content
		}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	return out
}
