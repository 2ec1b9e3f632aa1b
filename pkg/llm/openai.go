package llm

import (
	"context"
	"io"

	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *go_openai.Client
}

var _ Client = (*OpenAIClient)(nil)

func NewOpenAIClient(apiKey string, baseURL string) *OpenAIClient {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: go_openai.NewClientWithConfig(config)}
}

func toOpenAIRequest(req *Request, stream bool) go_openai.ChatCompletionRequest {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := go_openai.ChatMessageRoleUser
		if m.Role == conversation.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	return go_openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

func upstreamError(op string, err error) error {
	ret := &UpstreamAPIError{Op: op, Err: err}

	var apiErr *go_openai.APIError
	var reqErr *go_openai.RequestError
	if errors.As(err, &apiErr) {
		ret.StatusCode = apiErr.HTTPStatusCode
	} else if errors.As(err, &reqErr) {
		ret.StatusCode = reqErr.HTTPStatusCode
	}
	return ret
}

func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Msg("starting chat completion stream")

	stream, err := c.client.CreateChatCompletionStream(ctx, toOpenAIRequest(req, true))
	if err != nil {
		return nil, upstreamError("chat completion stream", err)
	}
	return &openAIStream{stream: stream}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, toOpenAIRequest(req, false))
	if err != nil {
		return "", upstreamError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamAPIError{Op: "chat completion", Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

type openAIStream struct {
	stream *go_openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", upstreamError("chat completion stream", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		return response.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
