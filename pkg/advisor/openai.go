package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/apollo/canaria/pkg/canary"
)

const defaultModel = "gpt-4o-mini"

const systemPrompt = "You are an SRE assistant. In at most three sentences, " +
	"explain what the failing canary health gates suggest about the new " +
	"version and what the operator should look at first. Be concrete, no filler."

// OpenAI generates rollout narratives via the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI constructs an advisor for the given API key. Model may be empty.
func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai advisor: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model}, nil
}

func (a *OpenAI) Narrate(ctx context.Context, d *canary.Deployment, v canary.Verdict) (string, error) {
	prompt := fmt.Sprintf(
		"Canary rollout of %s (stable %s) on deployment %s/%s is %s at %d%% traffic.\nFailed gates:\n- %s",
		d.CanaryVersion, d.StableVersion, d.Workload.Namespace, d.Workload.Name,
		v.Result, d.CurrentCanaryPercent, strings.Join(v.Reasons, "\n- "),
	)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai advisor: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai advisor: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
