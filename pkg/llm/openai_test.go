package llm

import (
	"context"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagent/voyagent/pkg/config"
)

// scriptedChat records the outbound request and replies with a fixed
// response.
type scriptedChat struct {
	last     openai.ChatCompletionRequest
	response openai.ChatCompletionResponse
	err      error
}

func (s *scriptedChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (
	openai.ChatCompletionResponse, error) {
	s.last = req
	return s.response, s.err
}

func textResponse(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: text}},
		},
		Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19},
	}
}

func TestOpenAIClientTextCompletion(t *testing.T) {
	chat := &scriptedChat{response: textResponse("two flights found")}
	c := NewOpenAIClientWithChat(chat, "gpt-4o-mini")

	completion, err := c.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "flights to Rome"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "two flights found", completion.Content)
	assert.Equal(t, 12, completion.Usage.InputTokens)
	assert.Equal(t, 19, completion.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", chat.last.Model)
	require.Len(t, chat.last.Messages, 2)
}

func TestOpenAIClientToolCallsTranslate(t *testing.T) {
	chat := &scriptedChat{response: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{
				Role: "assistant",
				ToolCalls: []openai.ToolCall{{
					ID:   "call_1",
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      "search_flights_oneway",
						Arguments: `{"origin":"CDG"}`,
					},
				}},
			}},
		},
	}}
	c := NewOpenAIClientWithChat(chat, "gpt-4o-mini")

	completion, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "flights from Paris"}},
		Tools: []ToolDefinition{{
			Name:        "search_flights_oneway",
			Description: "one-way search",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}},
		ToolChoice: ToolChoiceRequired,
	})
	require.NoError(t, err)
	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "search_flights_oneway", completion.ToolCalls[0].Name)
	assert.Equal(t, `{"origin":"CDG"}`, completion.ToolCalls[0].Arguments)

	require.Len(t, chat.last.Tools, 1)
	assert.Equal(t, "required", chat.last.ToolChoice)
}

func TestOpenAIClientJSONResponseFormat(t *testing.T) {
	chat := &scriptedChat{response: textResponse(`{"ok": true}`)}
	c := NewOpenAIClientWithChat(chat, "gpt-4o-mini")

	_, err := c.Complete(context.Background(), Request{
		Messages:     []Message{{Role: RoleUser, Content: "classify"}},
		JSONResponse: true,
	})
	require.NoError(t, err)
	require.NotNil(t, chat.last.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, chat.last.ResponseFormat.Type)
}

func TestOpenAIClientRejectsUnknownToolChoice(t *testing.T) {
	c := NewOpenAIClientWithChat(&scriptedChat{}, "gpt-4o-mini")
	_, err := c.Complete(context.Background(), Request{
		Messages:   []Message{{Role: RoleUser, Content: "hi"}},
		ToolChoice: "sometimes",
	})
	assert.Error(t, err)
}

func TestOpenAIClientRequiresMessages(t *testing.T) {
	c := NewOpenAIClientWithChat(&scriptedChat{}, "gpt-4o-mini")
	_, err := c.Complete(context.Background(), Request{})
	assert.Error(t, err)
}

func TestNewOpenAIClientRequiresModel(t *testing.T) {
	_, err := NewOpenAIClient(config.LLMProviderConfig{})
	assert.Error(t, err)
}
