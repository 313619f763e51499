package chatter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type MessageFilter struct {
	ChatID *int64
	Type   *db.MessageType
	Status *db.MessageStatus
	Page   db.Page
}

type Stats struct {
	TotalMessages int64            `json:"total_messages"`
	UniqueUsers   int64            `json:"unique_users"`
	LastActivity  *time.Time       `json:"last_activity"`
	ByType        map[string]int64 `json:"by_type"`
	ByStatus      map[string]int64 `json:"by_status"`
}

func (chatter *Chatter) Message(ctx context.Context, id uint) (*db.TelegramMessage, error) {
	var message db.TelegramMessage
	if err := chatter.deps.DBC.WithContext(ctx).First(&message, id).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("message %d", id))
	}
	return &message, nil
}

// Messages lists stored messages newest first, together with the total
// number of messages matching filter.
func (chatter *Chatter) Messages(ctx context.Context, filter MessageFilter) ([]db.TelegramMessage, int64, error) {
	q := chatter.deps.DBC.WithContext(ctx).Model(&db.TelegramMessage{})
	if filter.ChatID != nil {
		q = q.Where("chat_id = ?", *filter.ChatID)
	}
	if filter.Type != nil {
		q = q.Where("message_type = ?", *filter.Type)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	return newestFirst(q, filter.Page)
}

// Search matches content case-insensitively.
func (chatter *Chatter) Search(ctx context.Context, query string, page db.Page) ([]db.TelegramMessage, int64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, 0, apperr.New(apperr.InvalidPayload, "search query is required")
	}
	pattern := "%" + strings.ToLower(query) + "%"
	q := chatter.deps.DBC.WithContext(ctx).Model(&db.TelegramMessage{}).Where("LOWER(content) LIKE ?", pattern)
	return newestFirst(q, page)
}

func newestFirst(q *gorm.DB, page db.Page) ([]db.TelegramMessage, int64, error) {
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "messages")
	}
	messages := []db.TelegramMessage{}
	if err := q.Order("created_at DESC, id DESC").Scopes(page.Scope).Find(&messages).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "messages")
	}
	return messages, total, nil
}

type groupCount struct {
	Bucket string
	Count  int64
}

func (chatter *Chatter) Stats(ctx context.Context) (*Stats, error) {
	dbc := chatter.deps.DBC.WithContext(ctx)
	stats := &Stats{}

	if err := dbc.Model(&db.TelegramMessage{}).Count(&stats.TotalMessages).Error; err != nil {
		return nil, apperr.FromDB(err, "message count")
	}
	if err := dbc.Model(&db.TelegramMessage{}).Distinct("chat_id").Count(&stats.UniqueUsers).Error; err != nil {
		return nil, apperr.FromDB(err, "chat count")
	}

	grouped := func(column string) (map[string]int64, error) {
		var rows []groupCount
		err := dbc.Model(&db.TelegramMessage{}).
			Select(column + " AS bucket, COUNT(*) AS count").
			Group(column).
			Scan(&rows).Error
		if err != nil {
			return nil, apperr.FromDB(err, "messages by "+column)
		}
		return lo.Associate(rows, func(row groupCount) (string, int64) { return row.Bucket, row.Count }), nil
	}
	var err error
	if stats.ByType, err = grouped("message_type"); err != nil {
		return nil, err
	}
	if stats.ByStatus, err = grouped("status"); err != nil {
		return nil, err
	}

	var latest []db.TelegramMessage
	if err := dbc.Select("id", "created_at").Order("created_at DESC").Limit(1).Find(&latest).Error; err != nil {
		return nil, apperr.FromDB(err, "last message")
	}
	if len(latest) > 0 {
		stats.LastActivity = &latest[0].CreatedAt
	}
	return stats, nil
}
