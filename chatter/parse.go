package chatter

import (
	"encoding/json"

	"github.com/EPecherkin/catty-bills/apperr"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseUpdate decodes a JSON update and checks it carries something to handle.
func ParseUpdate(raw []byte) (*tgbotapi.Update, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, apperr.Wrap(apperr.InvalidPayload, err, "invalid webhook data")
	}

	var err error
	switch {
	case update.Message != nil:
		err = validateMessage(update.Message)
	case update.EditedMessage != nil:
		err = validateMessage(update.EditedMessage)
	case update.CallbackQuery != nil:
	default:
		err = apperr.New(apperr.InvalidPayload, "update has no message, edited_message or callback_query")
	}
	if err != nil {
		return nil, err
	}
	return &update, nil
}
