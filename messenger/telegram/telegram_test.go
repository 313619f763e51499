package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/messenger/base"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const testToken = "123:abc"

// fakeBotAPI answers the Bot API methods the client uses.
type fakeBotAPI struct {
	mu       sync.Mutex
	requests []string
	sent     []string
}

func (api *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
		if strings.HasSuffix(r.URL.Path, "missing.jpg") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = io.WriteString(w, "jpeg bytes")
		return
	}

	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	api.requests = append(api.requests, method)
	_ = r.ParseForm()

	var result any = true
	switch method {
	case "getMe":
		result = map[string]any{"id": 42, "is_bot": true, "first_name": "Bills", "username": "bills_bot"}
	case "sendMessage":
		api.sent = append(api.sent, r.PostForm.Get("text"))
		result = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1}}
	case "getFile":
		path := "photos/file_1.jpg"
		if r.PostForm.Get("file_id") == "missing" {
			path = "photos/missing.jpg"
		}
		result = map[string]any{"file_id": r.PostForm.Get("file_id"), "file_unique_id": "u", "file_path": path}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func newTestClient(t *testing.T) (*Client, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	client, err := CreateClient(testToken, Options{
		APIEndpoint:  server.URL + "/bot%s/%s",
		FileEndpoint: server.URL + "/file/bot%s/%s",
		HTTPClient:   server.Client(),
	}, deps.NewDeps(logger.NewDiscard(), nil, nil))
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	return client, api
}

func TestClientBotInfoAndSend(t *testing.T) {
	ctx := context.Background()
	client, api := newTestClient(t)

	info, err := client.BotInfo(ctx)
	if err != nil {
		t.Fatalf("BotInfo: %v", err)
	}
	if info.UserName != "bills_bot" || info.ID != 42 {
		t.Fatalf("unexpected bot info: %+v", info)
	}

	if err := client.SendText(ctx, 999, "<b>hi</b>"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := client.SetCommands(ctx, []base.Command{{Command: "start", Description: "Start the bot"}}); err != nil {
		t.Fatalf("SetCommands: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sent) != 1 || api.sent[0] != "<b>hi</b>" {
		t.Fatalf("unexpected sent messages: %v", api.sent)
	}
}

func TestClientDownload(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	download, err := client.Download(ctx, "photo-1")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer download.Body.Close()
	body, err := io.ReadAll(download.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != "jpeg bytes" || download.RemotePath != "photos/file_1.jpg" {
		t.Fatalf("unexpected download: %q %q", body, download.RemotePath)
	}

	if _, err := client.Download(ctx, "missing"); !apperr.Is(err, apperr.UpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestClientSetWebhookRequiresHTTPS(t *testing.T) {
	client, _ := newTestClient(t)
	if err := client.SetWebhook(context.Background(), "http://example.com/hook"); !apperr.Is(err, apperr.InvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
	if err := client.SetWebhook(context.Background(), "https://example.com/hook"); err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
}

func TestReceiverKeepsChatOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[int64][]int{}
	receiver := NewReceiver(func(ctx context.Context, update tgbotapi.Update) error {
		mu.Lock()
		defer mu.Unlock()
		chatID := update.Message.Chat.ID
		seen[chatID] = append(seen[chatID], update.Message.MessageID)
		return nil
	}, deps.NewDeps(logger.NewDiscard(), nil, nil))

	updates := make(chan tgbotapi.Update)
	go func() {
		defer close(updates)
		for i := 1; i <= 20; i++ {
			chatID := int64(1 + i%2)
			updates <- tgbotapi.Update{UpdateID: i, Message: &tgbotapi.Message{MessageID: i, Chat: &tgbotapi.Chat{ID: chatID}}}
		}
	}()
	receiver.Consume(ctx, updates)

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		done := len(seen[1])+len(seen[2]) == 20
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("updates not handled in time: %v", seen)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	receiver.Wait()

	for chatID, ids := range seen {
		for i := 1; i < len(ids); i++ {
			if ids[i] < ids[i-1] {
				t.Fatalf("chat %d handled out of order: %v", chatID, ids)
			}
		}
	}
}

func TestSlowChatDoesNotStallOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	handled := make(chan int64, 32)
	receiver := NewReceiver(func(ctx context.Context, update tgbotapi.Update) error {
		if update.Message.Chat.ID == 1 {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		handled <- update.Message.Chat.ID
		return nil
	}, deps.NewDeps(logger.NewDiscard(), nil, nil))

	updates := make(chan tgbotapi.Update)
	go receiver.Consume(ctx, updates)
	for i := 1; i <= 18; i++ {
		updates <- tgbotapi.Update{UpdateID: i, Message: &tgbotapi.Message{MessageID: i, Chat: &tgbotapi.Chat{ID: 1}}}
	}
	updates <- tgbotapi.Update{UpdateID: 19, Message: &tgbotapi.Message{MessageID: 19, Chat: &tgbotapi.Chat{ID: 2}}}

	select {
	case chatID := <-handled:
		if chatID != 2 {
			t.Fatalf("chat %d handled while chat 1 is blocked", chatID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chat 2 update not handled while chat 1 is blocked")
	}

	close(release)
	for i := 0; i < 18; i++ {
		select {
		case <-handled:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d updates of chat 1 handled", i)
		}
	}
	cancel()
	receiver.Wait()
}
