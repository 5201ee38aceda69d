package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appnotifications "rentme-realtime/internal/app/notifications"
	"rentme-realtime/internal/domain/notification"
)

// notificationTTL bounds how long notifications are kept.
const notificationTTL = 90 * 24 * time.Hour

// NotificationStore persists notifications in the user_notifications
// collection keyed by notification id.
type NotificationStore struct {
	col *mongo.Collection
}

func NewNotificationStore(ctx context.Context, db *mongo.Database) (*NotificationStore, error) {
	col := db.Collection("user_notifications")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_read", Value: 1}}},
		{
			Keys:    bson.D{{Key: "stored_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(notificationTTL.Seconds())),
		},
	})
	if err != nil {
		return nil, err
	}
	return &NotificationStore{col: col}, nil
}

func (s *NotificationStore) Save(ctx context.Context, n notification.Notification) (bool, error) {
	doc := notificationDocument{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		CreatedAt: n.CreatedAt.UTC(),
		IsRead:    n.IsRead,
		StoredAt:  time.Now().UTC(),
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *NotificationStore) List(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := s.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []notificationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]notification.Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"user_id": userID, "is_read": false})
	return int(n), err
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := s.col.UpdateMany(ctx, bson.M{"user_id": userID, "is_read": false}, bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

type notificationDocument struct {
	ID        string            `bson:"_id"`
	UserID    string            `bson:"user_id"`
	Type      string            `bson:"type"`
	Title     string            `bson:"title"`
	Message   string            `bson:"message"`
	Data      map[string]string `bson:"data,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
	IsRead    bool              `bson:"is_read"`
	StoredAt  time.Time         `bson:"stored_at"`
}

func (d notificationDocument) toDomain() notification.Notification {
	return notification.Notification{
		ID:        d.ID,
		UserID:    d.UserID,
		Type:      notification.Type(d.Type),
		Title:     d.Title,
		Message:   d.Message,
		Data:      d.Data,
		CreatedAt: d.CreatedAt,
		IsRead:    d.IsRead,
	}
}

var _ appnotifications.Store = (*NotificationStore)(nil)
