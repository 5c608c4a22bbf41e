package core

// Photo is an outbound image attachment. Bytes take precedence over URL
// when both are set.
type Photo struct {
	Bytes    []byte
	MimeType string
	URL      string
	Caption  string
}

// Transport sends outbound messages to the chat platform. Failures are
// surfaced for logging only, nothing in the pipeline retries delivery.
type Transport interface {
	SendText(chatId int64, text string) error
	SendPhoto(chatId int64, photo Photo) error
}

// PromptService handles one image prompt end to end, including every
// user-facing message for that request.
type PromptService interface {
	HandlePrompt(chatId int64, userId int64, prompt string)
}
