package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/conversation"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Config holds Bot API client configuration.
type Config struct {
	Token       string        `json:"token"`
	APIURL      string        `json:"api_url"`
	Timeout     time.Duration `json:"timeout"`
	PollTimeout int           `json:"poll_timeout"` // long-poll window, seconds
}

// Client is a minimal Bot API client. It implements the Messenger
// interfaces of both the alert dispatcher and the conversation manager.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
	baseURL    string
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64                 `json:"chat_id"`
	Text        string                `json:"text"`
	ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// NewClient creates a Bot API client.
func NewClient(config *Config) (*Client, error) {
	if config.Token == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Telegram bot token is required", "")
	}
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = 30
	}

	return &Client{
		config: config,
		logger: utils.GetLogger(),
		httpClient: &http.Client{
			// Long polls hold the connection open for PollTimeout; the
			// client timeout must exceed it.
			Timeout: config.Timeout + time.Duration(config.PollTimeout)*time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		baseURL: config.APIURL + "/bot" + config.Token,
	}, nil
}

// call invokes one Bot API method and decodes the result envelope.
func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal API payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create API request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeTelegram, "Failed to reach Telegram API", err.Error())
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return utils.NewAppError(utils.ErrCodeTelegram, "Failed to decode API response", err.Error())
	}
	if !envelope.OK {
		return utils.NewAppError(utils.ErrCodeTelegram, "Telegram API call failed",
			fmt.Sprintf("method: %s, status: %d, description: %s", method, resp.StatusCode, envelope.Description))
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return utils.NewAppError(utils.ErrCodeTelegram, "Failed to decode API result", err.Error())
		}
	}
	return nil
}

// SendMessage delivers a plain text message to a chat.
func (c *Client) SendMessage(ctx context.Context, userID int64, text string) error {
	return c.call(ctx, "sendMessage", &sendMessageRequest{ChatID: userID, Text: text}, nil)
}

// SendChoicePrompt delivers a message with an inline keyboard, one
// button per row.
func (c *Client) SendChoicePrompt(ctx context.Context, userID int64, text string, choices []conversation.Choice) error {
	markup := &inlineKeyboardMarkup{}
	for _, choice := range choices {
		markup.InlineKeyboard = append(markup.InlineKeyboard, []inlineKeyboardButton{
			{Text: choice.Label, CallbackData: choice.Data},
		})
	}
	return c.call(ctx, "sendMessage", &sendMessageRequest{
		ChatID:      userID,
		Text:        text,
		ReplyMarkup: markup,
	}, nil)
}

// answerCallbackQuery acknowledges a button press so the client stops
// showing a progress indicator.
func (c *Client) answerCallbackQuery(ctx context.Context, callbackID string) error {
	payload := map[string]string{"callback_query_id": callbackID}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}
