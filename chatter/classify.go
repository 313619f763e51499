package chatter

import (
	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/db"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	PHOTO_CONTENT    = "Receipt photo"
	DOCUMENT_CONTENT = "Document"
)

type messageKind struct {
	Type    db.MessageType
	Content string
	FileID  *string
}

func validateMessage(message *tgbotapi.Message) error {
	if message.Chat == nil {
		return apperr.New(apperr.InvalidPayload, "message has no chat")
	}
	if message.MessageID == 0 {
		return apperr.New(apperr.InvalidPayload, "message has no message_id")
	}
	return nil
}

func classify(message *tgbotapi.Message) messageKind {
	withCaption := func(fallback string) string {
		if message.Caption != "" {
			return message.Caption
		}
		return fallback
	}
	file := func(id string) *string { return &id }

	switch {
	case len(message.Photo) > 0:
		// sizes are ascending, the last one is the original
		largest := message.Photo[len(message.Photo)-1]
		return messageKind{Type: db.MessageTypePhoto, Content: withCaption(PHOTO_CONTENT), FileID: file(largest.FileID)}
	case message.Document != nil:
		return messageKind{Type: db.MessageTypeDocument, Content: withCaption(DOCUMENT_CONTENT), FileID: file(message.Document.FileID)}
	case message.Audio != nil:
		return messageKind{Type: db.MessageTypeAudio, Content: withCaption(""), FileID: file(message.Audio.FileID)}
	case message.Video != nil:
		return messageKind{Type: db.MessageTypeVideo, Content: withCaption(""), FileID: file(message.Video.FileID)}
	case message.Voice != nil:
		return messageKind{Type: db.MessageTypeVoice, Content: withCaption(""), FileID: file(message.Voice.FileID)}
	case message.Sticker != nil:
		return messageKind{Type: db.MessageTypeSticker, Content: message.Sticker.Emoji, FileID: file(message.Sticker.FileID)}
	default:
		content := message.Text
		if content == "" {
			content = message.Caption
		}
		return messageKind{Type: db.MessageTypeText, Content: content}
	}
}
