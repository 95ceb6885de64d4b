package mongodb

import (
	"context"
	"time"

	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/goevery/realtimesync/internal/persistence"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const retention = 5 * 24 * time.Hour

type Update struct {
	Id           bson.ObjectID `bson:"_id,omitempty"`
	MessageId    string        `bson:"messageId"`
	Type         string        `bson:"type"`
	ResourceType string        `bson:"resourceType"`
	SubjectId    string        `bson:"subjectId,omitempty"`
	Data         string        `bson:"data,omitempty"`
	Timestamp    time.Time     `bson:"timestamp"`
}

type PersistenceEngine struct {
	collection *mongo.Collection
}

func NewPersistenceEngine(client *mongo.Client, database string) *PersistenceEngine {
	collection := client.Database(database).Collection("updates")

	return &PersistenceEngine{
		collection,
	}
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	ttlIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
	}

	topicIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "resourceType", Value: 1},
			{Key: "subjectId", Value: 1},
			{Key: "timestamp", Value: 1},
		},
	}

	_, err := e.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{ttlIndexModel, topicIndexModel})

	return err
}

func (e *PersistenceEngine) Save(ctx context.Context, message broadcaster.Message) error {
	_, err := e.collection.InsertOne(ctx, Update{
		MessageId:    message.Id,
		Type:         message.Type,
		ResourceType: message.ResourceType,
		SubjectId:    message.SubjectId,
		Data:         string(message.Data),
		Timestamp:    message.Timestamp,
	})

	return err
}

func (e *PersistenceEngine) List(ctx context.Context, request persistence.ListRequest) ([]broadcaster.Message, error) {
	filter := bson.M{
		"resourceType": request.ResourceType,
		"timestamp":    bson.M{"$gt": request.After},
	}
	if request.SubjectId != "" {
		filter["subjectId"] = request.SubjectId
	}

	limit := request.Limit
	if limit <= 0 {
		limit = persistence.DefaultListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	result, err := e.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var updates []Update
	err = result.All(ctx, &updates)
	if err != nil {
		return nil, err
	}

	messages := make([]broadcaster.Message, len(updates))
	for i, u := range updates {
		messages[i] = broadcaster.Message{
			Id:           u.MessageId,
			Type:         u.Type,
			ResourceType: u.ResourceType,
			SubjectId:    u.SubjectId,
			Timestamp:    u.Timestamp,
		}
		if u.Data != "" {
			messages[i].Data = []byte(u.Data)
		}
	}

	return messages, nil
}
