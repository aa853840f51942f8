package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/warden/internal/config"
	"github.com/semmidev/warden/internal/infrastructure/logger"
)

type recordingChannel struct {
	name string
	err  error

	mu       sync.Mutex
	subjects []string
	messages []string
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(ctx context.Context, subject, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	r.messages = append(r.messages, message)
	return r.err
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestDispatcher(t *testing.T) {
	Convey("Given a Dispatcher with two channels", t, func() {
		ok := &recordingChannel{name: "ok"}
		broken := &recordingChannel{name: "broken", err: errors.New("down")}
		d := NewDispatcher("warden", logger.Nop(), ok, broken)

		Convey("Notify should reach every channel and swallow failures", func() {
			delivered := d.Notify(context.Background(), "upload", "app_db: connection refused")

			So(delivered, ShouldEqual, 1)
			So(ok.subjects, ShouldResemble, []string{"[warden] upload failed"})
			So(ok.messages, ShouldResemble, []string{"app_db: connection refused"})
			So(broken.subjects, ShouldHaveLength, 1)
		})

		Convey("Channels lists channel names", func() {
			So(d.Channels(), ShouldResemble, []string{"ok", "broken"})
		})
	})

	Convey("Given a Dispatcher without channels", t, func() {
		d := NewDispatcher("warden", logger.Nop())
		So(d.Notify(context.Background(), "backup", "x"), ShouldEqual, 0)
	})

	Convey("FromConfig builds the configured channels", t, func() {
		cfg := &config.Config{App: config.AppConfig{Name: "warden"}}
		cfg.Notifications.Discord.WebhookURL = "https://discord.com/api/webhooks/1/x"
		cfg.Notifications.Slack.WebhookURL = "https://hooks.slack.com/services/x"
		cfg.Notifications.SMTP = config.SMTPConfig{Host: "mail", Port: 25, To: []string{"ops@example.com"}}

		d, err := FromConfig(cfg, logger.Nop())
		So(err, ShouldBeNil)
		So(d.Channels(), ShouldResemble, []string{"discord", "slack", "smtp"})

		cfg.Notifications.Telegram = config.TelegramConfig{BotToken: "t", ChatID: "not-a-number"}
		_, err = FromConfig(cfg, logger.Nop())
		So(err, ShouldNotBeNil)
	})
}

func TestWebhooks(t *testing.T) {
	Convey("Given a webhook endpoint", t, func() {
		var (
			mu      sync.Mutex
			payload map[string]string
			status  = http.StatusNoContent
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			_ = json.NewDecoder(r.Body).Decode(&payload)
			w.WriteHeader(status)
		}))
		defer server.Close()

		Convey("Discord should post content", func() {
			err := NewDiscord(server.URL).Send(context.Background(), "backup failed", "dump exited 1")
			So(err, ShouldBeNil)
			So(payload["content"], ShouldContainSubstring, "**backup failed**")
			So(payload["content"], ShouldContainSubstring, "dump exited 1")
		})

		Convey("Slack should post text", func() {
			err := NewSlack(server.URL).Send(context.Background(), "upload failed", "timeout")
			So(err, ShouldBeNil)
			So(payload["text"], ShouldContainSubstring, "*upload failed*")
		})

		Convey("Long messages should be truncated", func() {
			err := NewDiscord(server.URL).Send(context.Background(), "s", strings.Repeat("x", 5000))
			So(err, ShouldBeNil)
			So(len([]rune(payload["content"])), ShouldEqual, discordContentLimit)
			So(payload["content"], ShouldEndWith, "x…\n```")
		})

		Convey("Long Slack messages keep the closing fence", func() {
			err := NewSlack(server.URL).Send(context.Background(), "dump failed", strings.Repeat("y", 4000))
			So(err, ShouldBeNil)
			So(len([]rune(payload["text"])), ShouldEqual, slackTextLimit)
			So(payload["text"], ShouldStartWith, "*dump failed*\n```")
			So(payload["text"], ShouldEndWith, "y…```")
		})

		Convey("Short messages are not cut", func() {
			err := NewDiscord(server.URL).Send(context.Background(), "s", "ok")
			So(err, ShouldBeNil)
			So(payload["content"], ShouldEqual, "**s**\n```\nok\n```")
		})

		Convey("A non-2xx status should be an error", func() {
			status = http.StatusBadRequest
			err := NewSlack(server.URL).Send(context.Background(), "s", "m")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "400")
		})
	})
}

func TestSMTP(t *testing.T) {
	Convey("Given an SMTP notifier with a fake transport", t, func() {
		var gotAddr, gotFrom string
		var gotTo []string
		var gotMsg []byte
		var gotAuth smtp.Auth

		n := NewSMTP(&config.SMTPConfig{
			Host: "mail.example.com", Port: 587,
			Username: "bot@example.com", Password: "secret",
			To: []string{"ops@example.com", "dev@example.com"},
		})
		n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
			return nil
		}

		err := n.Send(context.Background(), "[warden] backup failed", "line1\nline2")

		Convey("It should build a plain text mail", func() {
			So(err, ShouldBeNil)
			So(gotAddr, ShouldEqual, "mail.example.com:587")
			So(gotAuth, ShouldNotBeNil)
			So(gotFrom, ShouldEqual, "bot@example.com")
			So(gotTo, ShouldResemble, []string{"ops@example.com", "dev@example.com"})
			So(string(gotMsg), ShouldContainSubstring, "Subject: [warden] backup failed\r\n")
			So(string(gotMsg), ShouldContainSubstring, "To: ops@example.com, dev@example.com\r\n")
			So(string(gotMsg), ShouldEndWith, "line1\r\nline2")
		})
	})
}

func TestTelegram(t *testing.T) {
	Convey("Given a Telegram notifier with a fake bot", t, func() {
		bot := &fakeBot{}
		n := &Telegram{bot: bot, chatID: 42}

		Convey("Send should post one message to the chat", func() {
			So(n.Send(context.Background(), "backup failed", "boom"), ShouldBeNil)
			So(bot.sent, ShouldHaveLength, 1)
			msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
			So(ok, ShouldBeTrue)
			So(msg.ChatID, ShouldEqual, int64(42))
			So(msg.Text, ShouldContainSubstring, "backup failed")
		})

		Convey("Send should wrap bot errors", func() {
			bot.err = errors.New("unauthorized")
			err := n.Send(context.Background(), "s", "m")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to send telegram notification")
		})
	})
}
