package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-bot-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrInvalidPriceAmount = errors.New("priceAmount must be a positive integer in minor currency units")

// SettingRepository defines the interface for bot configuration access.
// There is exactly one settings document; Get creates it lazily.
type SettingRepository interface {
	Get(ctx context.Context) (*models.Setting, error)
	Replace(ctx context.Context, req *models.UpdateSettingRequest) (*models.Setting, error)
}

// MongoSettingRepository implements SettingRepository using MongoDB.
type MongoSettingRepository struct {
	collection *mongo.Collection
}

func NewMongoSettingRepository(db *mongo.Database) *MongoSettingRepository {
	return &MongoSettingRepository{
		collection: db.Collection("settings"),
	}
}

func (r *MongoSettingRepository) Get(ctx context.Context) (*models.Setting, error) {
	var setting models.Setting
	err := r.collection.FindOne(ctx, bson.M{}).Decode(&setting)
	if err == nil {
		return &setting, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("find settings: %w", err)
	}

	fresh := models.DefaultSetting()
	fresh.UpdatedAt = time.Now().UTC()
	res, insertErr := r.collection.InsertOne(ctx, fresh)
	if insertErr != nil {
		return nil, fmt.Errorf("create default settings: %w", insertErr)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		fresh.ID = id
	}
	return fresh, nil
}

// Replace applies a partial update on top of the current settings document.
// Missing request fields retain their previous value.
func (r *MongoSettingRepository) Replace(ctx context.Context, req *models.UpdateSettingRequest) (*models.Setting, error) {
	setting, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}

	if err := ApplySettingUpdates(setting, req); err != nil {
		return nil, err
	}
	setting.UpdatedAt = time.Now().UTC()

	_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": setting.ID}, setting)
	if err != nil {
		return nil, fmt.Errorf("replace settings: %w", err)
	}
	return setting, nil
}

// ApplySettingUpdates merges a partial update into a settings document,
// validating priceAmount. Shared with the in-memory test repository.
func ApplySettingUpdates(setting *models.Setting, req *models.UpdateSettingRequest) error {
	if req == nil {
		return nil
	}
	if req.TelegramBotToken != nil {
		setting.TelegramBotToken = *req.TelegramBotToken
	}
	if req.TelegramProviderToken != nil {
		setting.TelegramProviderToken = *req.TelegramProviderToken
	}
	if req.Currency != nil && strings.TrimSpace(*req.Currency) != "" {
		setting.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if req.PriceAmount != nil {
		if *req.PriceAmount < 1 {
			return ErrInvalidPriceAmount
		}
		setting.PriceAmount = *req.PriceAmount
	}
	if req.PaymentTitle != nil {
		setting.PaymentTitle = *req.PaymentTitle
	}
	if req.PaymentDescription != nil {
		setting.PaymentDescription = *req.PaymentDescription
	}
	if req.SuccessMessage != nil {
		setting.SuccessMessage = *req.SuccessMessage
	}
	return nil
}
