package ai

import (
	"ArtBot/core"
	"ArtBot/lib/sl"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls the generation provider's chat-completions endpoint.
type Client struct {
	conf   *core.Config
	log    *slog.Logger
	client *http.Client
}

func NewClient(conf *core.Config, log *slog.Logger) *Client {
	return &Client{
		conf: conf,
		log:  log.With(sl.Module("ai-client")),
		client: &http.Client{
			Timeout: time.Duration(conf.Provider.RequestTimeout) * time.Second,
		},
	}
}

// Generate issues one generation call for the prompt. A transport failure
// or non-200 status is terminal for the request, the caller does not retry.
func (c *Client) Generate(prompt string) (*Response, error) {
	request := NewGenerationRequest(c.conf.Provider.Model, prompt)
	jsonBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %v", err)
	}

	req, err := http.NewRequest("POST", c.conf.Provider.BaseURL+"/chat/completions", strings.NewReader(string(jsonBytes)))
	if err != nil {
		return nil, fmt.Errorf("making request: %v", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.conf.Provider.ApiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getting response: %v", err)
	}
	defer func(Body io.ReadCloser) {
		err = Body.Close()
		if err != nil {
			c.log.Error("closing response body", sl.Err(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %v", err)
	}
	c.log.With(
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(body)),
	).Debug("provider response")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation status %d", resp.StatusCode)
	}

	var genResp Response
	if err = json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("decoding response: %v", err)
	}
	if genResp.Error != nil {
		return nil, fmt.Errorf("provider error %d: %s", genResp.Error.Code, genResp.Error.Message)
	}
	c.log.With(
		slog.String("model", genResp.Model),
		slog.Int("choices", len(genResp.Choices)),
	).Info("generation completed")

	return &genResp, nil
}
