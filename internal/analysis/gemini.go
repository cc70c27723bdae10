package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiAnalyzer runs thought-record analysis against Google's Gemini
// API with a JSON response schema.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnalyzer creates a Gemini-backed analyzer.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiAnalyzer{client: client, model: model}, nil
}

var resultSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"distortions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type":        {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"confidence":  {Type: genai.TypeNumber},
				},
				Required: []string{"type", "description", "confidence"},
			},
		},
		"recommendations": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"exerciseId":    {Type: genai.TypeString},
					"reason":        {Type: genai.TypeString},
					"effectiveness": {Type: genai.TypeNumber},
				},
				Required: []string{"exerciseId", "reason", "effectiveness"},
			},
		},
	},
	Required: []string{"distortions", "recommendations"},
}

func (a *GeminiAnalyzer) Analyze(ctx context.Context, input Input) (Result, error) {
	prompt := buildPrompt(input)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   resultSchema,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFailed, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: empty model response", ErrFailed)
	}

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return Result{}, fmt.Errorf("%w: decode model response: %v", ErrFailed, err)
	}

	return sanitize(result, input.Catalog), nil
}

func buildPrompt(input Input) string {
	var b strings.Builder
	b.WriteString("You are a CBT assistant. Analyze the following thought record (ABC model).\n")
	b.WriteString("Identify cognitive distortions present in the beliefs, and recommend exercises from the catalog below.\n\n")
	b.WriteString("Activating event: " + input.ActivatingEvent + "\n")
	b.WriteString("Beliefs: " + input.Beliefs + "\n")
	b.WriteString("Consequences: " + input.Consequences + "\n\n")
	b.WriteString("Exercise catalog (recommend only by these ids):\n")
	for _, ex := range input.Catalog {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", ex.ID, ex.Title, ex.Category)
	}
	b.WriteString("\nConfidence and effectiveness are numbers between 0 and 1.\n")
	return b.String()
}
