package usage

// Tokens is a token-count snapshot.
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// NewTokens builds a snapshot with the total filled in.
func NewTokens(input, output int) Tokens {
	return Tokens{Input: input, Output: output, Total: input + output}
}

// Cost is a USD cost snapshot.
type Cost struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// ModelPricing is the price per million tokens in USD.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultPricing covers the models the supported providers expose.
// Unknown models cost zero rather than failing: accounting must never block
// a ceremony.
var defaultPricing = map[string]ModelPricing{
	"claude-3-5-sonnet-20241022": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-opus-20240229":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"gemini-2.0-flash":           {InputPerMTok: 0.10, OutputPerMTok: 0.40},
	"gemini-1.5-pro":             {InputPerMTok: 1.25, OutputPerMTok: 5.00},
	"gemini-1.5-flash":           {InputPerMTok: 0.075, OutputPerMTok: 0.30},
}

const tokensPerUnit = 1_000_000

// CalculateCost converts token counts into USD using the pricing table.
func CalculateCost(inputTokens, outputTokens int, model string) Cost {
	p, ok := defaultPricing[model]
	if !ok {
		return Cost{}
	}
	in := float64(inputTokens) / tokensPerUnit * p.InputPerMTok
	out := float64(outputTokens) / tokensPerUnit * p.OutputPerMTok
	return Cost{Input: in, Output: out, Total: in + out}
}
