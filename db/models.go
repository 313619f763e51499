package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type BillStatus string

const (
	BillStatusPending    BillStatus = "pending"
	BillStatusProcessing BillStatus = "processing"
	BillStatusCompleted  BillStatus = "completed"
	BillStatusError      BillStatus = "error"
)

func (status BillStatus) Valid() bool {
	switch status {
	case BillStatusPending, BillStatusProcessing, BillStatusCompleted, BillStatusError:
		return true
	}
	return false
}

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypePhoto    MessageType = "photo"
	MessageTypeDocument MessageType = "document"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVideo    MessageType = "video"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeSticker  MessageType = "sticker"
)

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Telegram chat owner. ExternalID is the telegram chat id; chat messages
// reference it instead of ID.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID int64     `gorm:"uniqueIndex;not null" json:"external_id"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Shop struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(256);uniqueIndex;not null" json:"name"`
	Address   *string   `gorm:"type:text" json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Categories form a tree through ParentID only.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(256);uniqueIndex;not null" json:"name"`
	ParentID  *uint     `gorm:"index" json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Index is the canonical identity of a product. Synonyms map alternative
// spellings found on receipts to the canonical name.
type Index struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	Name       string            `gorm:"type:varchar(256);uniqueIndex;not null" json:"name"`
	Synonyms   datatypes.JSONMap `json:"synonyms"`
	CategoryID *uint             `gorm:"index" json:"category_id"`
	Category   *Category         `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type Bill struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	UserID       uint                `gorm:"index;not null" json:"user_id"`
	ShopID       *uint               `gorm:"index" json:"shop_id"`
	BillDate     time.Time           `gorm:"not null" json:"bill_date"`
	TotalAmount  decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"total_amount"`
	ImageURL     *string             `gorm:"type:text" json:"image_url"`
	Status       BillStatus          `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	ErrorMessage *string             `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	User         *User               `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Shop         *Shop               `gorm:"constraint:OnDelete:SET NULL" json:"shop,omitempty"`
	Items        []BillItem          `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

type BillItem struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	BillID          uint            `gorm:"index;not null" json:"bill_id"`
	IndexID         *uint           `gorm:"index" json:"index_id"`
	Quantity        decimal.Decimal `gorm:"type:numeric(10,3);not null" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"unit_price"`
	TotalPrice      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_price"`
	OriginalText    *string         `gorm:"type:text" json:"original_text"`
	ConfidenceScore *float64        `json:"confidence_score"`
	CreatedAt       time.Time       `json:"created_at"`
	Index           *Index          `gorm:"constraint:OnDelete:SET NULL" json:"index,omitempty"`
}

// One inbound chat event. (ChatID, TelegramMessageID) is unique, so a
// redelivered webhook never creates a second row.
type TelegramMessage struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	TelegramMessageID int64         `gorm:"not null;uniqueIndex:idx_telegram_messages_chat_message" json:"telegram_message_id"`
	ChatID            int64         `gorm:"not null;index;uniqueIndex:idx_telegram_messages_chat_message" json:"chat_id"`
	MessageType       MessageType   `gorm:"type:varchar(16);not null;index" json:"message_type"`
	Content           string        `gorm:"type:text;not null" json:"content"`
	FileID            *string       `gorm:"type:varchar(256)" json:"file_id"`
	FilePath          *string       `gorm:"type:text" json:"file_path"`
	Status            MessageStatus `gorm:"type:varchar(16);not null;default:sent;index" json:"status"`
	ErrorMessage      *string       `gorm:"type:text" json:"error_message"`
	UserID            int64         `gorm:"index;not null" json:"user_id"`
	BillID            *uint         `gorm:"index" json:"bill_id"`
	SentAt            time.Time     `json:"sent_at"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Bill              *Bill         `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	User              *User         `gorm:"foreignKey:UserID;references:ExternalID;constraint:OnDelete:CASCADE" json:"-"`
}

// Models lists everything AutoMigrate has to know about, parents first.
func Models() []any {
	return []any{&User{}, &Shop{}, &Category{}, &Index{}, &Bill{}, &BillItem{}, &TelegramMessage{}}
}
