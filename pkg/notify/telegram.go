package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// telegramAPIBase is overridable in tests.
var telegramAPIBase = "https://api.telegram.org"

// SendTelegram pushes a text message to the chat configured on the
// collection's Telegram connector via the Bot API sendMessage method.
func (s *Service) SendTelegram(ctx context.Context, conn TelegramConnector, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": conn.ChatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, conn.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
