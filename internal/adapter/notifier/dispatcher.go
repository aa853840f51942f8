package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/semmidev/warden/internal/config"
	"github.com/semmidev/warden/internal/domain"
)

const sendTimeout = 30 * time.Second

// Dispatcher fans a failure message out to every configured channel. Delivery
// is best effort: failures are logged and never reach the caller.
type Dispatcher struct {
	appName  string
	channels []domain.Notifier
	logger   domain.Logger
}

func NewDispatcher(appName string, logger domain.Logger, channels ...domain.Notifier) *Dispatcher {
	return &Dispatcher{appName: appName, channels: channels, logger: logger}
}

// FromConfig builds one channel per configured notification target.
func FromConfig(cfg *config.Config, logger domain.Logger) (*Dispatcher, error) {
	n := cfg.Notifications
	var channels []domain.Notifier

	if n.Telegram.BotToken != "" && n.Telegram.ChatID != "" {
		tg, err := NewTelegram(&n.Telegram)
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}
	if n.Discord.WebhookURL != "" {
		channels = append(channels, NewDiscord(n.Discord.WebhookURL))
	}
	if n.Slack.WebhookURL != "" {
		channels = append(channels, NewSlack(n.Slack.WebhookURL))
	}
	if n.SMTP.Host != "" && len(n.SMTP.To) > 0 {
		channels = append(channels, NewSMTP(&n.SMTP))
	}

	return NewDispatcher(cfg.App.Name, logger, channels...), nil
}

func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		names = append(names, c.Name())
	}
	return names
}

// Notify reports a failed step. It returns the number of channels that
// accepted the message.
func (d *Dispatcher) Notify(ctx context.Context, step, message string) int {
	if len(d.channels) == 0 {
		return 0
	}

	subject := fmt.Sprintf("[%s] %s failed", d.appName, step)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch domain.Notifier) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()

			if err := ch.Send(sendCtx, subject, message); err != nil {
				d.logger.Errorf("Failed to send %s notification: %v", ch.Name(), err)
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	return delivered
}
