package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"studiotblack/internal/model"
	"studiotblack/internal/reminders"

	"github.com/rs/zerolog"
)

const DefaultPushURL = "https://exp.host/--/api/v2/push/send"

// DeviceStore lists and prunes push tokens.
type DeviceStore interface {
	ListDevices(ctx context.Context, userID string) ([]model.Device, error)
	DeleteDevice(ctx context.Context, token string) error
}

// Push sends notifications through the Expo push API to every device a
// user registered from the mobile app.
type Push struct {
	url         string
	accessToken string
	devices     DeviceStore
	client      *http.Client
	logger      *zerolog.Logger
}

func NewPush(url, accessToken string, devices DeviceStore, logger *zerolog.Logger) *Push {
	if url == "" {
		url = DefaultPushURL
	}
	return &Push{
		url:         url,
		accessToken: accessToken,
		devices:     devices,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

type pushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type pushTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type pushResponse struct {
	Data   []pushTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send implements reminders.Notifier.
func (p *Push) Send(ctx context.Context, n reminders.Notification) error {
	devices, err := p.devices.ListDevices(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return &reminders.SendError{Code: 404, Message: "no registered device for " + n.UserID}
	}

	msgs := make([]pushMessage, len(devices))
	for i, d := range devices {
		msgs[i] = pushMessage{To: d.Token, Title: n.Title, Body: n.Body, Data: n.Payload, Sound: "default"}
	}
	body, err := json.Marshal(msgs)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.accessToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retry, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &reminders.SendError{Code: 429, Message: "push rate limited", RetryAfter: time.Duration(retry) * time.Second}
	case resp.StatusCode >= 500:
		return fmt.Errorf("push service: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return &reminders.SendError{Code: resp.StatusCode, Message: string(raw)}
	}

	var parsed pushResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return fmt.Errorf("push rejected: %s", parsed.Errors[0].Message)
	}

	delivered := 0
	for i, ticket := range parsed.Data {
		if ticket.Status == "ok" {
			delivered++
			continue
		}
		if ticket.Details.Error == "DeviceNotRegistered" && i < len(devices) {
			if err := p.devices.DeleteDevice(ctx, devices[i].Token); err != nil {
				p.logger.Error().Err(err).Msg("Failed to prune push token")
			}
		}
		p.logger.Warn().Str("user_id", n.UserID).Str("error", ticket.Details.Error).Str("message", ticket.Message).
			Msg("push ticket rejected")
	}
	if delivered == 0 {
		return &reminders.SendError{Code: 404, Message: "no device accepted the notification"}
	}
	return nil
}
