package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLMClient implements LLMClient using Google's Gemini API.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiLLMClient{
		client:  client,
		modelID: modelID,
	}, nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := c.client.GenerativeModel(c.modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	model.Tools = geminiTools(req.Tools)

	if systemText := strings.TrimSpace(strings.Join(req.System, "\n\n")); systemText != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
	}

	turns := make([]ChatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role != ChatRoleSystem {
			turns = append(turns, msg)
		}
	}
	if len(turns) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini requires at least one message")
	}

	cs := model.StartChat()
	for _, msg := range turns[:len(turns)-1] {
		content := geminiContent(msg)
		if len(content.Parts) > 0 {
			cs.History = append(cs.History, content)
		}
	}

	last := geminiContent(turns[len(turns)-1])
	if len(last.Parts) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini last message is empty")
	}
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned empty content")
	}

	result := geminiResponse(candidate.Content.Parts)
	result.StopReason = candidate.FinishReason.String()
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiTools(tools []ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(tool.Params)),
		}
		for _, p := range tool.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func geminiContent(msg ChatMessage) *genai.Content {
	role := "user"
	if msg.Role == ChatRoleAssistant {
		role = "model"
	}
	content := &genai.Content{Role: role}
	if text := strings.TrimSpace(msg.Content); text != "" {
		content.Parts = append(content.Parts, genai.Text(text))
	}
	for _, call := range msg.ToolCalls {
		args, err := decodeToolInput(call.Input)
		if err != nil {
			args = map[string]any{}
		}
		content.Parts = append(content.Parts, genai.FunctionCall{Name: call.Name, Args: args})
	}
	for _, result := range msg.ToolResults {
		payload := map[string]any{"result": result.Content}
		if result.IsError {
			payload = map[string]any{"error": result.Content}
		}
		content.Parts = append(content.Parts, genai.FunctionResponse{Name: result.Name, Response: payload})
	}
	return content
}

func geminiResponse(parts []genai.Part) LLMResponse {
	var (
		builder strings.Builder
		resp    LLMResponse
	)
	for i, part := range parts {
		switch p := part.(type) {
		case genai.Text:
			builder.WriteString(string(p))
		case genai.FunctionCall:
			input, err := json.Marshal(p.Args)
			if err != nil || p.Args == nil {
				input = json.RawMessage("{}")
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:    fmt.Sprintf("gemini-%s-%d", p.Name, i),
				Name:  p.Name,
				Input: input,
			})
		}
	}
	resp.Text = strings.TrimSpace(builder.String())
	return resp
}
