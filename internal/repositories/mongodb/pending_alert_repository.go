package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"panicdesk/internal/models"
	"panicdesk/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// pendingTrayDocument stores the whole tray of one namespace in a single document
// so the list order survives a reload.
type pendingTrayDocument struct {
	Namespace string                `bson:"_id"`
	Alerts    []models.PendingAlert `bson:"alerts"`
	UpdatedAt time.Time             `bson:"updated_at"`
}

type pendingAlertRepository struct {
	collection *mongo.Collection
	namespace  string
}

func NewPendingAlertRepository(db *mongo.Database, collection, namespace string) interfaces.PendingAlertRepository {
	return &pendingAlertRepository{
		collection: db.Collection(collection),
		namespace:  namespace,
	}
}

func (r *pendingAlertRepository) Save(ctx context.Context, alerts []models.PendingAlert) error {
	if alerts == nil {
		alerts = []models.PendingAlert{}
	}
	doc := pendingTrayDocument{
		Namespace: r.namespace,
		Alerts:    alerts,
		UpdatedAt: time.Now(),
	}

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": r.namespace}, doc, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageWrite, err)
	}
	return nil
}

func (r *pendingAlertRepository) Load(ctx context.Context) ([]models.PendingAlert, error) {
	var doc pendingTrayDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": r.namespace}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []models.PendingAlert{}, nil
		}
		return nil, fmt.Errorf("failed to load pending alerts: %w", err)
	}
	if doc.Alerts == nil {
		doc.Alerts = []models.PendingAlert{}
	}
	return doc.Alerts, nil
}
