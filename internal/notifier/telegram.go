package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"

	"StockScreener/internal/logger"
)

const telegramAPIURL = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIURL   string
	// RetryBase is the first backoff of SendWithRetry; it doubles per attempt.
	RetryBase time.Duration

	client *fasthttp.Client
	log    *logrus.Entry
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, apiURL, proxyURL string) *TelegramNotifier {
	if apiURL == "" {
		apiURL = telegramAPIURL
	}
	client := &fasthttp.Client{
		ReadTimeout:  40 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if proxyURL != "" {
		addr := strings.TrimPrefix(strings.TrimPrefix(proxyURL, "http://"), "https://")
		client.Dial = fasthttpproxy.FasthttpHTTPDialer(addr)
	}
	return &TelegramNotifier{
		BotToken:  botToken,
		ChatID:    chatID,
		APIURL:    strings.TrimRight(apiURL, "/"),
		RetryBase: time.Second,
		client:    client,
		log:       logger.Component("telegram"),
	}
}

func (t *TelegramNotifier) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.APIURL, t.BotToken, name)
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(t.method("sendMessage"))
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := t.client.DoTimeout(req, resp, 30*time.Second); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := t.Send(text); err != nil {
			lastErr = err
			backoff := t.RetryBase * time.Duration(1<<uint(i))
			t.log.WithError(err).Warnf("send failed (attempt %d/%d), retrying in %v", i+1, maxRetries+1, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// CommandHandler is called when a user command is received.
type CommandHandler func(command string) string

// StartPolling begins long-polling for Telegram commands. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	t.StartPollingWithTimeout(ctx, handler, 30)
}

// StartPollingWithTimeout is StartPolling with an explicit long-poll timeout in seconds.
func (t *TelegramNotifier) StartPollingWithTimeout(ctx context.Context, handler CommandHandler, pollSeconds int) {
	offset := int64(0)
	for {
		select {
		case <-ctx.Done():
			t.log.Info("polling stopped")
			return
		default:
		}

		body, err := t.getUpdates(offset, pollSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.WithError(err).Warn("polling request failed")
			sleep(ctx, 5*time.Second)
			continue
		}

		for _, update := range gjson.GetBytes(body, "result").Array() {
			offset = update.Get("update_id").Int() + 1
			text := strings.TrimSpace(update.Get("message.text").String())
			if text == "" {
				continue
			}
			t.log.WithField("command", text).Info("received command")
			if reply := handler(text); reply != "" {
				if err := t.Send(reply); err != nil {
					t.log.WithError(err).Error("send reply")
				}
			}
		}
	}
}

func (t *TelegramNotifier) getUpdates(offset int64, pollSeconds int) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(t.method("getUpdates"))
	req.URI().QueryArgs().SetUint("offset", int(offset))
	req.URI().QueryArgs().SetUint("timeout", pollSeconds)

	if err := t.client.DoTimeout(req, resp, time.Duration(pollSeconds+5)*time.Second); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("getUpdates: status %d", resp.StatusCode())
	}
	if !gjson.GetBytes(resp.Body(), "ok").Bool() {
		return nil, fmt.Errorf("getUpdates: %s", gjson.GetBytes(resp.Body(), "description").String())
	}
	return append([]byte(nil), resp.Body()...), nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
