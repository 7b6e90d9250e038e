package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-bot-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicatePayload = errors.New("payment payload already exists")
)

// PaymentRepository defines the interface for payment data access.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByPayload(ctx context.Context, payload string) (*models.Payment, error)
	FindActivePending(ctx context.Context, chatID int64, now time.Time) (*models.Payment, error)
	FindAllActivePending(ctx context.Context, chatID int64, now time.Time) ([]models.Payment, error)
	FindLatestSucceeded(ctx context.Context, chatID int64) (*models.Payment, error)
	UpdateFields(ctx context.Context, id primitive.ObjectID, updates bson.M) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, status models.Status, limit, skip int64) ([]models.Payment, error)
	CountByStatus(ctx context.Context) (*models.PaymentStats, error)
}

// MongoPaymentRepository implements PaymentRepository using MongoDB.
type MongoPaymentRepository struct {
	collection *mongo.Collection
}

func NewMongoPaymentRepository(db *mongo.Database) *MongoPaymentRepository {
	return &MongoPaymentRepository{
		collection: db.Collection("payments"),
	}
}

// EnsureIndexes creates the unique index backing payload idempotency.
func (r *MongoPaymentRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "payload", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "status", Value: 1}, {Key: "expires_at", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}

func (r *MongoPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	res, err := r.collection.InsertOne(ctx, payment)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicatePayload
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		payment.ID = id
	}
	return nil
}

func (r *MongoPaymentRepository) FindByPayload(ctx context.Context, payload string) (*models.Payment, error) {
	var payment models.Payment
	err := r.collection.FindOne(ctx, bson.M{"payload": payload}).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find payment by payload: %w", err)
	}
	return &payment, nil
}

func activePendingFilter(chatID int64, now time.Time) bson.M {
	return bson.M{
		"chat_id":    chatID,
		"status":     models.StatusPending,
		"expires_at": bson.M{"$gt": now},
	}
}

func (r *MongoPaymentRepository) FindActivePending(ctx context.Context, chatID int64, now time.Time) (*models.Payment, error) {
	var payment models.Payment
	err := r.collection.FindOne(ctx, activePendingFilter(chatID, now)).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active pending payment: %w", err)
	}
	return &payment, nil
}

func (r *MongoPaymentRepository) FindAllActivePending(ctx context.Context, chatID int64, now time.Time) ([]models.Payment, error) {
	cursor, err := r.collection.Find(ctx, activePendingFilter(chatID, now))
	if err != nil {
		return nil, fmt.Errorf("find active pending payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("decode active pending payments: %w", err)
	}
	return payments, nil
}

func (r *MongoPaymentRepository) FindLatestSucceeded(ctx context.Context, chatID int64) (*models.Payment, error) {
	filter := bson.M{"chat_id": chatID, "status": models.StatusSucceeded}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var payment models.Payment
	err := r.collection.FindOne(ctx, filter, opts).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find latest succeeded payment: %w", err)
	}
	return &payment, nil
}

func (r *MongoPaymentRepository) UpdateFields(ctx context.Context, id primitive.ObjectID, updates bson.M) error {
	updates["updated_at"] = time.Now().UTC()
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireStale transitions every pending payment past its deadline to expired.
// The operation is idempotent; repeated sweeps match nothing new.
func (r *MongoPaymentRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{
		"status":     models.StatusPending,
		"expires_at": bson.M{"$lt": now},
	}
	update := bson.M{"$set": bson.M{"status": models.StatusExpired, "updated_at": time.Now().UTC()}}

	res, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("expire stale payments: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoPaymentRepository) List(ctx context.Context, status models.Status, limit, skip int64) ([]models.Payment, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return payments, nil
}

func (r *MongoPaymentRepository) CountByStatus(ctx context.Context) (*models.PaymentStats, error) {
	stats := &models.PaymentStats{
		ByStatus:    make(map[models.Status]int64, len(models.AllStatuses)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, s := range models.AllStatuses {
		n, err := r.collection.CountDocuments(ctx, bson.M{"status": s})
		if err != nil {
			return nil, fmt.Errorf("count payments by status: %w", err)
		}
		stats.ByStatus[s] = n
		stats.Total += n
	}
	return stats, nil
}
