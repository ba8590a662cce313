package messaging

import (
	"fmt"
	"github.com/allape/picolink/logger"
	"io"
	"net/http"
	"net/url"
	"time"
)

var log = logger.New("[telegram]")

const DefaultEndpoint = "https://api.telegram.org"

// Telegram sends notifications through the Telegram Bot API. With empty
// credentials every send is a silent no-op, so wiring it unconditionally is
// safe.
type Telegram struct {
	BotToken string
	ChatID   string

	// Endpoint is overridable for tests.
	Endpoint string
	Client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		Endpoint: DefaultEndpoint,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *Telegram) Send(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return nil
	}

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	params := url.Values{}
	params.Set("chat_id", t.ChatID)
	params.Set("text", text)

	resp, err := t.Client.PostForm(
		fmt.Sprintf("%s/bot%s/sendMessage", endpoint, t.BotToken),
		params,
	)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send telegram message: %s: %s", resp.Status, string(body))
	}

	log.Println("telegram message sent")
	return nil
}
