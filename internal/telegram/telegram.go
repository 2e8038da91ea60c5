package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"streakkeeper/internal/errors"
	"streakkeeper/internal/models"
)

// API is the subset of tgbotapi.BotAPI the client uses.
type API interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client exposes the two chat primitives the bot needs: fetch updates after
// a cursor and send a text message to a chat.
// After ctx is cancelled a pending FetchUpdates returns at once, but its
// getUpdates request keeps running in the background for up to the poll
// timeout.
type Client struct {
	api API
	log *zap.Logger
}

func New(token string, log *zap.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.NewConfigError("telegram.bot_token", nil, err)
	}
	if log != nil {
		log.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	}
	return NewWithAPI(bot, log), nil
}

func NewWithAPI(api API, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{api: api, log: log}
}

// FetchUpdates long-polls for message updates with id >= offset. The call
// returns early with ctx.Err() when ctx is cancelled; the underlying HTTP
// request is left to finish on its own.
func (c *Client) FetchUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]models.Update, error) {
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = timeoutSeconds
	cfg.AllowedUpdates = []string{"message"}

	type result struct {
		updates []tgbotapi.Update
		err     error
	}
	done := make(chan result, 1)
	go func() {
		u, err := c.api.GetUpdates(cfg)
		done <- result{u, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: getUpdates: %w", errors.ErrTransientNetwork, r.err)
		}
		return convert(r.updates), nil
	}
}

// SendMessage sends plain text to the chat identified by operatorID.
func (c *Client) SendMessage(ctx context.Context, operatorID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(operatorID, 10, 64)
	if err != nil {
		return errors.Wrapf(errors.ErrValidation, "chat id %q", operatorID)
	}
	if _, err := c.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("%w: sendMessage: %w", errors.ErrTransientNetwork, err)
	}
	c.log.Debug("message sent", zap.String("chat_id", operatorID))
	return nil
}

// convert keeps text messages only; other update kinds still carry their id so
// the cursor can move past them.
func convert(in []tgbotapi.Update) []models.Update {
	out := make([]models.Update, 0, len(in))
	for _, u := range in {
		upd := models.Update{ID: int64(u.UpdateID)}
		if u.Message != nil && u.Message.Chat != nil {
			upd.OperatorID = strconv.FormatInt(u.Message.Chat.ID, 10)
			upd.Text = u.Message.Text
		}
		out = append(out, upd)
	}
	return out
}
