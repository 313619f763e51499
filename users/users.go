package users

import (
	"context"
	"fmt"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/EPecherkin/catty-bills/deps"
	"github.com/EPecherkin/catty-bills/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NewUser struct {
	ExternalID int64 `json:"external_id"`
	IsActive   *bool `json:"is_active"`
}

type UserPatch struct {
	ExternalID *int64 `json:"external_id"`
	IsActive   *bool  `json:"is_active"`
}

type Service struct {
	deps deps.Deps
}

func NewService(deps deps.Deps) *Service {
	return &Service{deps: deps.WithCaller("users")}
}

func (service *Service) WithTx(tx *gorm.DB) *Service {
	deps := service.deps
	deps.DBC = tx
	return &Service{deps: deps}
}

func (service *Service) Get(ctx context.Context, id uint) (*db.User, error) {
	var user db.User
	if err := service.deps.DBC.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("user %d", id))
	}
	return &user, nil
}

func (service *Service) ByExternalID(ctx context.Context, externalID int64) (*db.User, error) {
	var user db.User
	if err := service.deps.DBC.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("user with external id %d", externalID))
	}
	return &user, nil
}

// Create fails with Conflict when the external id is already registered.
func (service *Service) Create(ctx context.Context, input NewUser) (*db.User, error) {
	active := input.IsActive == nil || *input.IsActive
	user := &db.User{ExternalID: input.ExternalID, IsActive: active}
	if err := service.deps.DBC.WithContext(ctx).Create(user).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("user with external id %d", input.ExternalID))
	}
	if !active {
		// gorm skips zero values that have a column default on insert
		if err := service.deps.DBC.WithContext(ctx).Model(user).Update("is_active", false).Error; err != nil {
			return nil, apperr.FromDB(err, fmt.Sprintf("user %d", user.ID))
		}
		user.IsActive = false
	}
	service.deps.Logger.With(logger.USER_ID, user.ID).Debug("Created user")
	return user, nil
}

// GetOrCreate resolves the owner of a chat, creating an active user on first contact.
func (service *Service) GetOrCreate(ctx context.Context, externalID int64) (*db.User, error) {
	user, err := service.ByExternalID(ctx, externalID)
	if err == nil || !apperr.Is(err, apperr.NotFound) {
		return user, err
	}

	user = &db.User{ExternalID: externalID, IsActive: true}
	res := service.deps.DBC.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return nil, apperr.FromDB(res.Error, fmt.Sprintf("user with external id %d", externalID))
	}
	if res.RowsAffected > 0 {
		service.deps.Logger.With(logger.USER_ID, user.ID).With(logger.TELEGRAM_CHAT_ID, externalID).Debug("Creating new user from telegram")
		return user, nil
	}
	return service.ByExternalID(ctx, externalID)
}

func (service *Service) Update(ctx context.Context, id uint, patch UserPatch) (*db.User, error) {
	user, err := service.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if patch.ExternalID != nil && *patch.ExternalID != user.ExternalID {
		changes["external_id"] = *patch.ExternalID
	}
	if patch.IsActive != nil {
		changes["is_active"] = *patch.IsActive
	}
	if len(changes) == 0 {
		return user, nil
	}

	err = service.deps.DBC.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// chat messages reference the user by external id
		if _, ok := changes["external_id"]; ok {
			var messages int64
			if err := tx.Model(&db.TelegramMessage{}).Where("user_id = ?", user.ExternalID).Count(&messages).Error; err != nil {
				return apperr.FromDB(err, "telegram messages")
			}
			if messages > 0 {
				return apperr.New(apperr.InvalidPayload, "external_id can't change, user %d has %d chat messages", id, messages)
			}
		}
		if err := tx.Model(user).Updates(changes).Error; err != nil {
			return apperr.FromDB(err, fmt.Sprintf("user %d", id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return service.Get(ctx, id)
}
