package llm

import "context"

// Image is an image attached inline to a request.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is one multimodal call to the AI collaborator.
type Request struct {
	Prompt string
	Images []Image
}

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64   `json:"output_tokens" yaml:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens" yaml:"total_tokens"`
	CostUSD      float64 `json:"cost_usd" yaml:"cost_usd"`
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
		CostUSD:      u.CostUSD + o.CostUSD,
	}
}

// Response is the raw text answer of the model.
type Response struct {
	Text   string
	Model  string
	Usage  Usage
	Cached bool
}

// Client sends requests to a multimodal model. An error means the call did
// not complete (network, auth, rate limit); an unusable answer is returned as
// text and judged by the caller.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Name identifies the provider and model, e.g. "gemini/gemini-2.5-flash".
	Name() string
}

func calculateCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}
