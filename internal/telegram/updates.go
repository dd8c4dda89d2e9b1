package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/conversation"
)

// Handler consumes inbound user interaction events.
// *conversation.Manager implements it.
type Handler interface {
	HandleEvent(ctx context.Context, event *conversation.Event) error
}

type update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *message       `json:"message"`
	CallbackQuery *callbackQuery `json:"callback_query"`
}

type message struct {
	MessageID int64   `json:"message_id"`
	From      *tgUser `json:"from"`
	Text      string  `json:"text"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type callbackQuery struct {
	ID   string  `json:"id"`
	From *tgUser `json:"from"`
	Data string  `json:"data"`
}

type getUpdatesRequest struct {
	Offset  int64 `json:"offset,omitempty"`
	Timeout int   `json:"timeout"`
}

// Listener long-polls the Bot API for updates and dispatches them as
// conversation events.
type Listener struct {
	client  *Client
	handler Handler
	logger  *logrus.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	offset int64
}

// NewListener creates an update listener.
func NewListener(client *Client, handler Handler) *Listener {
	return &Listener{
		client:   client,
		handler:  handler,
		logger:   client.logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the long-poll loop.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	l.running = true

	l.wg.Add(1)
	go l.pollLoop(ctx)

	l.logger.Info("Telegram update listener started")
	return nil
}

// Stop shuts the loop down and waits for it to exit.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	l.mu.Unlock()

	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()

	l.logger.Info("Telegram update listener stopped")
	return nil
}

func (l *Listener) pollLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
		}

		updates, err := l.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("Failed to fetch updates: ", err)
			select {
			case <-time.After(3 * time.Second):
			case <-l.stopChan:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		for i := range updates {
			l.dispatch(ctx, &updates[i])
			if updates[i].UpdateID >= l.offset {
				l.offset = updates[i].UpdateID + 1
			}
		}
	}
}

func (l *Listener) fetchUpdates(ctx context.Context) ([]update, error) {
	var updates []update
	err := l.client.call(ctx, "getUpdates", &getUpdatesRequest{
		Offset:  l.offset,
		Timeout: l.client.config.PollTimeout,
	}, &updates)
	return updates, err
}

func (l *Listener) dispatch(ctx context.Context, u *update) {
	event := eventFromUpdate(u)
	if event == nil {
		return
	}

	if u.CallbackQuery != nil {
		if err := l.client.answerCallbackQuery(ctx, u.CallbackQuery.ID); err != nil {
			l.logger.Debug("Failed to acknowledge callback: ", err)
		}
	}

	if err := l.handler.HandleEvent(ctx, event); err != nil {
		l.logger.WithFields(logrus.Fields{
			"user": event.UserID,
			"kind": event.Kind,
		}).Error("Failed to handle event: ", err)
	}
}

// eventFromUpdate maps one Bot API update to a conversation event.
// Updates without an actionable payload map to nil.
func eventFromUpdate(u *update) *conversation.Event {
	if u.CallbackQuery != nil && u.CallbackQuery.From != nil {
		return &conversation.Event{
			UserID:    u.CallbackQuery.From.ID,
			FirstName: u.CallbackQuery.From.FirstName,
			Username:  u.CallbackQuery.From.Username,
			Kind:      conversation.EventChoice,
			Data:      u.CallbackQuery.Data,
		}
	}

	if u.Message != nil && u.Message.From != nil && u.Message.Text != "" {
		event := &conversation.Event{
			UserID:    u.Message.From.ID,
			FirstName: u.Message.From.FirstName,
			Username:  u.Message.From.Username,
		}
		if strings.HasPrefix(u.Message.Text, "/") {
			event.Kind = conversation.EventCommand
			event.Command = strings.Fields(u.Message.Text)[0]
		} else {
			event.Kind = conversation.EventText
			event.Data = u.Message.Text
		}
		return event
	}

	return nil
}
