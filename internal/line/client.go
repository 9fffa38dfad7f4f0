package line

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-bot/internal/config"
)

const (
	replyPath   = "/v2/bot/message/reply"
	pushPath    = "/v2/bot/message/push"
	contentPath = "/v2/bot/message/%s/content"
)

// Message is a Messaging API message object. Only text messages are sent by this service.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextMessage builds a text message.
func NewTextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

type replyRequest struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

type pushRequest struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}

// APIError is returned when the Messaging API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line api error (status %d): %s", e.StatusCode, e.Body)
}

// Client talks to the LINE Messaging API.
type Client struct {
	http        *resty.Client
	apiBase     string
	dataAPIBase string
	logger      *zap.Logger
}

// NewClient builds a client authenticated with the channel access token.
func NewClient(cfg config.LineConfig, logger *zap.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := resty.New().
		SetTimeout(timeout).
		SetAuthToken(cfg.ChannelAccessToken).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:        httpClient,
		apiBase:     strings.TrimRight(cfg.APIBaseURL, "/"),
		dataAPIBase: strings.TrimRight(cfg.DataAPIBaseURL, "/"),
		logger:      logger,
	}
}

// Reply answers an event with its reply token. Tokens expire shortly after delivery.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...Message) error {
	return c.post(ctx, c.apiBase+replyPath, replyRequest{ReplyToken: replyToken, Messages: messages})
}

// Push sends messages to a user without a reply token.
func (c *Client) Push(ctx context.Context, to string, messages ...Message) error {
	return c.post(ctx, c.apiBase+pushPath, pushRequest{To: to, Messages: messages})
}

// ReplyText replies with a single text message.
func (c *Client) ReplyText(ctx context.Context, replyToken, text string) error {
	return c.Reply(ctx, replyToken, NewTextMessage(text))
}

// PushText pushes a single text message.
func (c *Client) PushText(ctx context.Context, to, text string) error {
	return c.Push(ctx, to, NewTextMessage(text))
}

// Content streams the binary content of an image/video/audio message.
// The caller must close the returned reader.
func (c *Client) Content(ctx context.Context, messageID string) (io.ReadCloser, string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(c.dataAPIBase + fmt.Sprintf(contentPath, messageID))
	if err != nil {
		return nil, "", fmt.Errorf("fetch message content: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		var detail []byte
		if body != nil {
			detail, _ = io.ReadAll(io.LimitReader(body, 4096))
			body.Close()
		}
		return nil, "", &APIError{StatusCode: resp.StatusCode(), Body: string(detail)}
	}
	return body, resp.Header().Get("Content-Type"), nil
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("line api request failed: %w", err)
	}
	if resp.IsError() {
		c.logger.Warn("line api rejected request",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode()))
		return &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
