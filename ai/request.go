package ai

// GenerationRequest is the chat-completions payload for an image model.
type GenerationRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewGenerationRequest builds a single-message request for one prompt
func NewGenerationRequest(model, prompt string) *GenerationRequest {
	return &GenerationRequest{
		Model:    model,
		Messages: []Message{{Role: "user", Content: prompt}},
	}
}
