package chatter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/bills"
	"github.com/EPecherkin/catty-bills/catalog"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/dbtest"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/files"
	"github.com/EPecherkin/catty-bills/logger"
	"github.com/EPecherkin/catty-bills/messenger/base"
	"github.com/EPecherkin/catty-bills/metrics"
	"github.com/EPecherkin/catty-bills/users"
)

type sentText struct {
	chatID int64
	text   string
}

type fakeClient struct {
	mu       sync.Mutex
	sent     []sentText
	answered []string
	files    map[string]string
}

func (c *fakeClient) SendText(_ context.Context, chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentText{chatID: chatID, text: text})
	return nil
}

func (c *fakeClient) AnswerCallback(_ context.Context, id, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answered = append(c.answered, id)
	return nil
}

func (c *fakeClient) Download(_ context.Context, fileID string) (*base.Download, error) {
	content, ok := c.files[fileID]
	if !ok {
		return nil, apperr.New(apperr.UpstreamUnavailable, "file %s is gone", fileID)
	}
	return &base.Download{Body: io.NopCloser(strings.NewReader(content)), RemotePath: "photos/file_7.jpg", ContentType: "image/jpeg"}, nil
}

func (c *fakeClient) SetWebhook(context.Context, string) error          { return nil }
func (c *fakeClient) SetCommands(context.Context, []base.Command) error { return nil }
func (c *fakeClient) BotInfo(context.Context) (*base.BotInfo, error)    { return &base.BotInfo{}, nil }

func (c *fakeClient) texts() []sentText {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentText(nil), c.sent...)
}

type fixture struct {
	chatter *Chatter
	client  *fakeClient
	deps    deps.Deps
	root    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "uploads")
	bucket, err := files.OpenBucket(root)
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	t.Cleanup(func() { _ = bucket.Close() })

	deps := deps.NewDeps(logger.NewDiscard(), dbtest.Open(t), bucket)
	store, err := files.NewStore(root, deps)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	client := &fakeClient{files: map[string]string{"large": "jpeg bytes"}}
	services := Services{
		Users: users.NewService(deps),
		Bills: bills.NewService(catalog.NewCatalog(deps), deps),
		Store: store,
	}
	chatter := NewChatter(context.Background(), client, services, Options{DownloadTimeout: 5 * time.Second, Metrics: metrics.New()}, deps)
	t.Cleanup(chatter.Wait)
	return &fixture{chatter: chatter, client: client, deps: deps, root: store.Root()}
}

func (f *fixture) handle(t *testing.T, body string) Outcome {
	t.Helper()
	update, err := ParseUpdate([]byte(body))
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	outcome, err := f.chatter.HandleUpdate(context.Background(), *update)
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	return outcome
}

func textUpdate(updateID, messageID int, chatID int64, text string) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":1700000000,"chat":{"id":%d,"type":"private"},"text":%q}}`, updateID, messageID, chatID, text)
}

const photoUpdate = `{"update_id":10,"message":{"message_id":5,"date":1700000000,"chat":{"id":999,"type":"private"},
	"photo":[{"file_id":"small","file_unique_id":"s","width":90,"height":90},{"file_id":"large","file_unique_id":"l","width":1280,"height":960}]}}`

func TestDuplicateWebhookIsNoop(t *testing.T) {
	f := newFixture(t)
	body := textUpdate(1, 42, 555, "hello")

	if outcome := f.handle(t, body); outcome != OutcomeStored {
		t.Fatalf("first delivery = %s", outcome)
	}
	if outcome := f.handle(t, body); outcome != OutcomeDuplicate {
		t.Fatalf("second delivery = %s", outcome)
	}

	var count int64
	f.deps.DBC.Model(&db.TelegramMessage{}).Count(&count)
	if count != 1 {
		t.Fatalf("stored %d messages, want 1", count)
	}
	if sent := f.client.texts(); len(sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(sent))
	}
}

func TestPhotoFromNewChatIsStoredAndBilled(t *testing.T) {
	f := newFixture(t)

	if outcome := f.handle(t, photoUpdate); outcome != OutcomeStored {
		t.Fatalf("outcome = %s", outcome)
	}
	f.chatter.Wait()

	var user db.User
	if err := f.deps.DBC.Where("external_id = ?", 999).First(&user).Error; err != nil {
		t.Fatalf("user for chat 999: %v", err)
	}
	if !user.IsActive {
		t.Fatal("new user is not active")
	}

	var message db.TelegramMessage
	if err := f.deps.DBC.Where("chat_id = ? AND telegram_message_id = ?", 999, 5).First(&message).Error; err != nil {
		t.Fatalf("photo message: %v", err)
	}
	if message.MessageType != db.MessageTypePhoto || message.Content != PHOTO_CONTENT {
		t.Fatalf("message = %s %q", message.MessageType, message.Content)
	}
	if message.FileID == nil || *message.FileID != "large" {
		t.Fatalf("file id = %v, want the largest size", message.FileID)
	}
	if message.UserID != 999 || message.Status != db.MessageStatusSent {
		t.Fatalf("user id = %d, status = %s", message.UserID, message.Status)
	}

	if message.FilePath == nil {
		t.Fatal("file_path not recorded")
	}
	rel, err := filepath.Rel(f.root, *message.FilePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Fatalf("file %s is outside %s", *message.FilePath, f.root)
	}
	if !strings.HasPrefix(filepath.Base(rel), "photo_999_") || filepath.Ext(rel) != ".jpg" {
		t.Fatalf("unexpected file name %s", rel)
	}
	content, err := os.ReadFile(*message.FilePath)
	if err != nil || string(content) != "jpeg bytes" {
		t.Fatalf("stored file = %q, %v", content, err)
	}

	if message.BillID == nil {
		t.Fatal("message not linked to a bill")
	}
	var bill db.Bill
	if err := f.deps.DBC.First(&bill, *message.BillID).Error; err != nil {
		t.Fatalf("linked bill: %v", err)
	}
	if bill.UserID != user.ID || bill.Status != db.BillStatusPending {
		t.Fatalf("bill user = %d, status = %s", bill.UserID, bill.Status)
	}
	if !bill.BillDate.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("bill date = %s", bill.BillDate)
	}
	if bill.ImageURL == nil || !strings.HasPrefix(*bill.ImageURL, "photos/photo_999_") {
		t.Fatalf("image url = %v", bill.ImageURL)
	}

	sent := f.client.texts()
	if len(sent) != 2 || !strings.Contains(sent[0].text, "Photo received") || !strings.Contains(sent[1].text, "Photo saved") {
		t.Fatalf("replies = %+v", sent)
	}
}

func TestPhotoDownloadFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.client.files = map[string]string{}

	f.handle(t, photoUpdate)
	f.chatter.Wait()

	var message db.TelegramMessage
	if err := f.deps.DBC.Where("chat_id = ?", 999).First(&message).Error; err != nil {
		t.Fatalf("photo message: %v", err)
	}
	if message.Status != db.MessageStatusFailed || message.ErrorMessage == nil || *message.ErrorMessage == "" {
		t.Fatalf("status = %s, error = %v", message.Status, message.ErrorMessage)
	}
	if message.FilePath != nil || message.BillID != nil {
		t.Fatalf("file path = %v, bill = %v", message.FilePath, message.BillID)
	}

	var bills int64
	f.deps.DBC.Model(&db.Bill{}).Count(&bills)
	if bills != 0 {
		t.Fatalf("created %d bills for a failed download", bills)
	}
	sent := f.client.texts()
	if len(sent) != 2 || sent[1].text != ERROR_REPLY {
		t.Fatalf("replies = %+v", sent)
	}
}

func TestTextReplies(t *testing.T) {
	f := newFixture(t)

	f.handle(t, textUpdate(1, 1, 7, "/start"))
	f.handle(t, textUpdate(2, 2, 7, "  /HELP "))
	f.handle(t, textUpdate(3, 3, 7, "hello <b>"))

	sent := f.client.texts()
	if len(sent) != 3 {
		t.Fatalf("sent %d replies", len(sent))
	}
	if sent[0].text != WELCOME_REPLY || sent[1].text != HELP_REPLY {
		t.Fatal("commands got the wrong replies")
	}
	if !strings.Contains(sent[2].text, "<code>hello &lt;b&gt;</code>") {
		t.Fatalf("fallback reply = %q", sent[2].text)
	}
	for _, s := range sent {
		if s.chatID != 7 {
			t.Fatalf("reply went to chat %d", s.chatID)
		}
	}
}

func TestEditedMessageAndDocument(t *testing.T) {
	f := newFixture(t)

	f.handle(t, `{"update_id":1,"edited_message":{"message_id":3,"date":1700000000,"chat":{"id":8,"type":"private"},"text":"/help"}}`)
	f.handle(t, `{"update_id":2,"message":{"message_id":4,"date":1700000000,"chat":{"id":8,"type":"private"},"document":{"file_id":"doc","file_unique_id":"d"}}}`)

	var messages []db.TelegramMessage
	f.deps.DBC.Order("telegram_message_id").Find(&messages)
	if len(messages) != 2 {
		t.Fatalf("stored %d messages", len(messages))
	}
	if messages[0].MessageType != db.MessageTypeText || messages[1].MessageType != db.MessageTypeDocument {
		t.Fatalf("types = %s, %s", messages[0].MessageType, messages[1].MessageType)
	}
	if messages[1].Content != DOCUMENT_CONTENT || *messages[1].FileID != "doc" {
		t.Fatalf("document = %q %v", messages[1].Content, messages[1].FileID)
	}
}

func TestCallbackIsAnswered(t *testing.T) {
	f := newFixture(t)
	update, err := ParseUpdate([]byte(`{"update_id":1,"callback_query":{"id":"cb1","from":{"id":8},"data":"x"}}`))
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	outcome, err := f.chatter.HandleUpdate(context.Background(), *update)
	if err != nil || outcome != OutcomeCallback {
		t.Fatalf("HandleUpdate = %s, %v", outcome, err)
	}
	if len(f.client.answered) != 1 || f.client.answered[0] != "cb1" {
		t.Fatalf("answered = %v", f.client.answered)
	}
}

func TestParseUpdateRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"update_id":`,
		"no message":    `{"update_id":1}`,
		"no chat":       `{"update_id":1,"message":{"message_id":2,"text":"x"}}`,
		"no message id": `{"update_id":1,"message":{"chat":{"id":1},"text":"x"}}`,
	}
	for name, body := range cases {
		if _, err := ParseUpdate([]byte(body)); !apperr.Is(err, apperr.InvalidPayload) {
			t.Errorf("%s: err = %v, want invalid payload", name, err)
		}
	}
}

func TestMessageQueries(t *testing.T) {
	f := newFixture(t)
	f.handle(t, textUpdate(1, 1, 10, "Milk and BREAD"))
	f.handle(t, textUpdate(2, 2, 10, "eggs"))
	f.handle(t, textUpdate(3, 1, 20, "bread again"))
	ctx := context.Background()

	chat := int64(10)
	messages, total, err := f.chatter.Messages(ctx, MessageFilter{ChatID: &chat})
	if err != nil || total != 2 || len(messages) != 2 {
		t.Fatalf("Messages = %d/%d, %v", len(messages), total, err)
	}
	if messages[0].Content != "eggs" {
		t.Fatalf("newest first expected, got %q", messages[0].Content)
	}

	found, total, err := f.chatter.Search(ctx, "Bread", db.Page{})
	if err != nil || total != 2 || len(found) != 2 {
		t.Fatalf("Search = %d/%d, %v", len(found), total, err)
	}
	if _, _, err := f.chatter.Search(ctx, " ", db.Page{}); !apperr.Is(err, apperr.InvalidPayload) {
		t.Fatalf("empty search = %v", err)
	}

	message, err := f.chatter.Message(ctx, messages[1].ID)
	if err != nil || message.Content != "Milk and BREAD" {
		t.Fatalf("Message = %v, %v", message, err)
	}
	if _, err := f.chatter.Message(ctx, 9999); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("missing message = %v", err)
	}

	stats, err := f.chatter.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalMessages != 3 || stats.UniqueUsers != 2 || stats.ByType["text"] != 3 || stats.ByStatus["sent"] != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.LastActivity == nil {
		t.Fatal("last activity missing")
	}
}

func TestPhotoKey(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	if got := photoKey(999, 12, at, "photos/file_1.png"); got != "photos/photo_999_20240506_070809_123456_12.png" {
		t.Fatalf("photoKey = %s", got)
	}
	if got := photoKey(1, 12, at, "photos/file_1"); !strings.HasSuffix(got, DEFAULT_PHOTO_EXT) {
		t.Fatalf("photoKey without extension = %s", got)
	}
	if photoKey(999, 12, at, "photos/file_1.jpg") == photoKey(999, 13, at, "photos/file_2.jpg") {
		t.Fatal("photos of one chat taken at the same instant share a key")
	}
}
