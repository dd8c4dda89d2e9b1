package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/nft-trade-watcher/internal/conversation"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{Token: "test-token", APIURL: server.URL})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(&Config{})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeConfiguration, utils.ErrorCode(err))
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	require.NoError(t, client.SendMessage(context.Background(), 42, "hello"))
	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, int64(42), gotBody.ChatID)
	assert.Equal(t, "hello", gotBody.Text)
	assert.Nil(t, gotBody.ReplyMarkup)
}

func TestSendChoicePromptBuildsKeyboard(t *testing.T) {
	var gotBody sendMessageRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	choices := []conversation.Choice{
		{Label: "Ethereum", Data: "blockchain:ethereum"},
		{Label: "Cancel", Data: "cancel"},
	}
	require.NoError(t, client.SendChoicePrompt(context.Background(), 42, "Pick one", choices))

	require.NotNil(t, gotBody.ReplyMarkup)
	require.Len(t, gotBody.ReplyMarkup.InlineKeyboard, 2)
	assert.Equal(t, "Ethereum", gotBody.ReplyMarkup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "blockchain:ethereum", gotBody.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "cancel", gotBody.ReplyMarkup.InlineKeyboard[1][0].CallbackData)
}

func TestCallSurfacesAPIFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	})

	err := client.SendMessage(context.Background(), 42, "hello")
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeTelegram, utils.ErrorCode(err))
	assert.Contains(t, err.Error(), "chat not found")
}

func TestEventFromUpdate(t *testing.T) {
	from := &tgUser{ID: 7, FirstName: "Ada", Username: "ada"}

	tests := []struct {
		name   string
		update update
		want   *conversation.Event
	}{
		{
			name:   "command",
			update: update{Message: &message{From: from, Text: "/addcollection"}},
			want: &conversation.Event{
				UserID: 7, FirstName: "Ada", Username: "ada",
				Kind: conversation.EventCommand, Command: "/addcollection",
			},
		},
		{
			name:   "command with arguments keeps only the verb",
			update: update{Message: &message{From: from, Text: "/start now"}},
			want: &conversation.Event{
				UserID: 7, FirstName: "Ada", Username: "ada",
				Kind: conversation.EventCommand, Command: "/start",
			},
		},
		{
			name:   "free text",
			update: update{Message: &message{From: from, Text: "0xabc"}},
			want: &conversation.Event{
				UserID: 7, FirstName: "Ada", Username: "ada",
				Kind: conversation.EventText, Data: "0xabc",
			},
		},
		{
			name:   "button press",
			update: update{CallbackQuery: &callbackQuery{ID: "cb1", From: from, Data: "blockchain:ethereum"}},
			want: &conversation.Event{
				UserID: 7, FirstName: "Ada", Username: "ada",
				Kind: conversation.EventChoice, Data: "blockchain:ethereum",
			},
		},
		{
			name:   "empty update",
			update: update{},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eventFromUpdate(&tt.update))
		})
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	events []*conversation.Event
}

func (r *recordingHandler) HandleEvent(ctx context.Context, event *conversation.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestListenerDispatchesAndAdvancesOffset(t *testing.T) {
	var offsets []int64

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/bottest-token/getUpdates":
			var req getUpdatesRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			offsets = append(offsets, req.Offset)
			if len(offsets) == 1 {
				w.Write([]byte(`{"ok":true,"result":[
					{"update_id":10,"message":{"from":{"id":7,"first_name":"Ada"},"text":"/start"}},
					{"update_id":11,"callback_query":{"id":"cb1","from":{"id":7,"first_name":"Ada"},"data":"cancel"}}
				]}`))
				return
			}
			w.Write([]byte(`{"ok":true,"result":[]}`))
		default:
			w.Write([]byte(`{"ok":true,"result":{}}`))
		}
	})
	client.config.PollTimeout = 0

	handler := &recordingHandler{}
	listener := NewListener(client, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, listener.Start(ctx))

	assert.Eventually(t, func() bool {
		return handler.count() >= 2
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, listener.Stop())

	assert.Equal(t, conversation.EventCommand, handler.events[0].Kind)
	assert.Equal(t, conversation.EventChoice, handler.events[1].Kind)
	require.GreaterOrEqual(t, len(offsets), 2)
	assert.Equal(t, int64(0), offsets[0])
	assert.Equal(t, int64(12), offsets[1])
}
