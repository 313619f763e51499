package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

const (
	TIMEOUT   = 60
	OFFSET    = 0
	CHAT_IDLE = 1 * time.Minute
)

// HandleFunc processes one update. Errors are logged by the receiver.
type HandleFunc func(ctx context.Context, update tgbotapi.Update) error

// Receiver long-polls updates and hands them to a HandleFunc. Updates of
// one chat are handled in order, different chats in parallel.
type Receiver struct {
	handle HandleFunc

	// mu guards chats and every chatQueue.pending
	mu    sync.Mutex
	chats map[int64]*chatQueue
	wg    sync.WaitGroup

	deps deps.Deps
}

// chatQueue is unbounded so a slow chat never stalls dispatching.
type chatQueue struct {
	pending []tgbotapi.Update
	wake    chan struct{}
}

func NewReceiver(handle HandleFunc, deps deps.Deps) *Receiver {
	return &Receiver{handle: handle, chats: make(map[int64]*chatQueue), deps: deps.WithCaller("messenger.telegram.Receiver")}
}

// Run polls until ctx is done, then waits for chat workers to finish.
func (receiver *Receiver) Run(ctx context.Context, client *Client) error {
	if err := client.DeleteWebhook(ctx); err != nil {
		return err
	}

	receiver.deps.Logger.With("timeout", TIMEOUT).With("offset", OFFSET).Info("listening for updates")
	updateConfig := tgbotapi.NewUpdate(OFFSET)
	updateConfig.Timeout = TIMEOUT
	updates := client.Bot().GetUpdatesChan(updateConfig)

	receiver.Consume(ctx, updates)
	client.Bot().StopReceivingUpdates()
	receiver.wg.Wait()
	return nil
}

// Consume dispatches updates until the channel closes or ctx is done.
func (receiver *Receiver) Consume(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			lgr := receiver.deps.Logger
			if err := ctx.Err(); err != nil {
				lgr = lgr.With(logger.ERROR, errors.WithStack(err))
			}
			lgr.Debug("telegram receiver context closed")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			receiver.dispatch(ctx, update)
		}
	}
}

// Wait blocks until every chat worker has exited.
func (receiver *Receiver) Wait() {
	receiver.wg.Wait()
}

func chatIDOf(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	case update.EditedMessage != nil && update.EditedMessage.Chat != nil:
		return update.EditedMessage.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}

func (receiver *Receiver) dispatch(ctx context.Context, update tgbotapi.Update) {
	chatID := chatIDOf(update)
	receiver.deps.Logger.With(logger.TELEGRAM_UPDATE_ID, update.UpdateID).With(logger.TELEGRAM_CHAT_ID, chatID).Debug("bot received update")

	receiver.mu.Lock()
	queue, ok := receiver.chats[chatID]
	if !ok {
		queue = &chatQueue{wake: make(chan struct{}, 1)}
		receiver.chats[chatID] = queue
		receiver.wg.Add(1)
		go receiver.goChat(ctx, chatID, queue)
	}
	queue.pending = append(queue.pending, update)
	receiver.mu.Unlock()

	select {
	case queue.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest pending update of queue.
func (receiver *Receiver) next(queue *chatQueue) (tgbotapi.Update, bool) {
	receiver.mu.Lock()
	defer receiver.mu.Unlock()
	if len(queue.pending) == 0 {
		return tgbotapi.Update{}, false
	}
	update := queue.pending[0]
	queue.pending[0] = tgbotapi.Update{}
	queue.pending = queue.pending[1:]
	return update, true
}

func (receiver *Receiver) forget(chatID int64) {
	receiver.mu.Lock()
	delete(receiver.chats, chatID)
	receiver.mu.Unlock()
}

func (receiver *Receiver) goChat(ctx context.Context, chatID int64, queue *chatQueue) {
	lgr := receiver.deps.Logger.With(logger.TELEGRAM_CHAT_ID, chatID)
	defer func() {
		if err := recover(); err != nil {
			lgr.With(logger.ERROR, err).Error("panic in goChat")
			receiver.forget(chatID)
		}
		receiver.wg.Done()
	}()

	idle := time.NewTimer(CHAT_IDLE)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			receiver.forget(chatID)
			return
		}
		if update, ok := receiver.next(queue); ok {
			if err := receiver.handle(ctx, update); err != nil {
				lgr.With(logger.TELEGRAM_UPDATE_ID, update.UpdateID).With(logger.ERROR, err).Error("Failed to handle update")
			}
			idle.Reset(CHAT_IDLE)
			continue
		}

		select {
		case <-queue.wake:
		case <-idle.C:
			receiver.mu.Lock()
			if len(queue.pending) == 0 {
				delete(receiver.chats, chatID)
				receiver.mu.Unlock()
				lgr.Debug("chat idle, stopping worker")
				return
			}
			receiver.mu.Unlock()
			idle.Reset(CHAT_IDLE)
		case <-ctx.Done():
			receiver.forget(chatID)
			return
		}
	}
}
