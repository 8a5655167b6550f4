package telegram

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://api.telegram.org"

// BotAPI is a minimal Telegram Bot API client used for channel reports.
type BotAPI struct {
	token  string
	client *resty.Client
}

// NewBotAPI creates a client against the public Bot API.
func NewBotAPI(token string) *BotAPI {
	return NewBotAPIWithBaseURL(DefaultBaseURL, token)
}

// NewBotAPIWithBaseURL creates a client against a custom Bot API server.
func NewBotAPIWithBaseURL(baseURL, token string) *BotAPI {
	return &BotAPI{
		token:  token,
		client: resty.New().SetBaseURL(baseURL + "/bot" + token),
	}
}

// Enabled reports whether a token is configured.
func (b *BotAPI) Enabled() bool {
	return b != nil && b.token != ""
}

// Call makes a raw API call to the Telegram Bot API.
func (b *BotAPI) Call(method string, params map[string]interface{}) (string, error) {
	resp, err := b.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return "", fmt.Errorf("telegram API call %s failed: %w", method, err)
	}
	if resp.IsError() {
		return resp.String(), fmt.Errorf("telegram API call %s: status %d", method, resp.StatusCode())
	}
	return resp.String(), nil
}

// SendMessage sends a text message.
func (b *BotAPI) SendMessage(chatID string, text string, replyMarkup interface{}) (string, error) {
	params := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if replyMarkup != nil {
		params["reply_markup"] = replyMarkup
	}
	return b.Call("sendMessage", params)
}
