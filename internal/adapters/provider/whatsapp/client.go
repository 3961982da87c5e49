package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whatsapp-campaign-launcher/internal/domain"
)

// Client implements ports.TemplateSender against a Cloud-API-shaped HTTP endpoint.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL and API version.
func New(baseURL, apiVersion string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendError is returned when the provider rejects a send.
type SendError struct {
	StatusCode int
	Message    string
}

func (e *SendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

type language struct {
	Policy string `json:"policy"`
	Code   string `json:"code"`
}

type component struct {
	Type       string                     `json:"type"`
	Parameters []domain.TemplateParameter `json:"parameters"`
}

type template struct {
	Name       string      `json:"name"`
	Namespace  string      `json:"namespace,omitempty"`
	Language   language    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         template `json:"template"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendTemplate posts a template message from the channel's phone number.
func (c *Client) SendTemplate(ctx context.Context, ch *domain.Channel, to string, tpl domain.RenderedTemplate) (string, error) {
	payload := sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: template{
			Name:      tpl.Name,
			Namespace: tpl.Namespace,
			Language:  language{Policy: "deterministic", Code: tpl.LanguageCode},
		},
	}
	if len(tpl.Parameters) > 0 {
		payload.Template.Components = []component{{Type: "body", Parameters: tpl.Parameters}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, ch.ProviderConfig.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ch.ProviderConfig.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var er errorResponse
		_ = json.Unmarshal(raw, &er)
		return "", &SendError{StatusCode: resp.StatusCode, Message: er.Error.Message}
	}

	var sr sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(sr.Messages) == 0 {
		return "", nil
	}
	return sr.Messages[0].ID, nil
}
