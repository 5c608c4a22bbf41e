package ai

import "encoding/json"

// Response is a chat-completions reply. Providers disagree on where a
// generated image lives: newer versions return structured content blocks,
// older ones a bare string or a separate images list. Decoding keeps every
// shape; Normalize picks one artifact out of them.
type Response struct {
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
	Images  []ContentBlock `json:"images"`
}

// MessageContent is either a plain string or a list of content blocks.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err == nil {
		c.Blocks = blocks
		return nil
	}
	// unknown content shape counts as no image, not as a broken response
	return nil
}

// ContentBlock is one structured content item. Field names vary between
// provider versions, so every known alias gets its own field.
type ContentBlock struct {
	Type        string   `json:"type"`
	Text        string   `json:"text"`
	B64JSON     string   `json:"b64_json"`
	ImageBase64 string   `json:"image_base64"`
	MimeType    string   `json:"mime_type"`
	URL         string   `json:"url"`
	ImageURL    URLField `json:"image_url"`
	URI         string   `json:"uri"`
}

// URLField accepts both `"image_url": "https://…"` and
// `"image_url": {"url": "https://…"}`.
type URLField struct {
	URL string
}

func (u *URLField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		u.URL = s
		return nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		u.URL = obj.URL
	}
	return nil
}
