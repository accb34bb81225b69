// Package mongostore keeps conversations as single documents with embedded messages, using the
// field names (userId, ahaMoment) the web client reads.
package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/ducktype/ducktype/internal/conversation"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

type insightDoc struct {
	Text      string    `bson:"text"`
	CreatedAt time.Time `bson:"createdAt"`
}

type messageDoc struct {
	User      string             `bson:"user"`
	AI        conversation.Reply `bson:"ai"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type conversationDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"userId,omitempty"`
	Title     string             `bson:"title"`
	Messages  []messageDoc       `bson:"messages"`
	AhaMoment *insightDoc        `bson:"ahaMoment,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type legacyDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	User      string             `bson:"user"`
	AI        conversation.Reply `bson:"ai"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ conversation.Store = (*Store)(nil)

// Connect dials uri and pings the server once. The returned client pools connections and is
// shared by all requests.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) conversations() *mongo.Collection { return s.db.Collection(conversationsCollection) }
func (s *Store) messages() *mongo.Collection      { return s.db.Collection(messagesCollection) }

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, conversation.ErrInvalidID
	}
	return oid, nil
}

func filterFor(oid primitive.ObjectID, owner string) bson.M {
	f := bson.M{"_id": oid}
	if owner != "" {
		f["userId"] = owner
	}
	return f
}

func (s *Store) ListConversations(ctx context.Context, owner string) ([]conversation.Conversation, error) {
	filter := bson.M{}
	if owner != "" {
		filter["userId"] = owner
	}
	cur, err := s.conversations().Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]conversation.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	doc := conversationDoc{
		UserID:    c.OwnerID,
		Title:     c.Title,
		Messages:  []messageDoc{},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	res, err := s.conversations().InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		c.ID = oid.Hex()
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id, owner string) (*conversation.Conversation, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc conversationDoc
	if err := s.conversations().FindOne(ctx, filterFor(oid, owner)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, conversation.ErrNotFound
		}
		return nil, err
	}
	c := doc.toDomain()
	return &c, nil
}

func (s *Store) UpdateConversation(ctx context.Context, id, owner string, p conversation.Patch, now time.Time) (*conversation.Conversation, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": now}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Insight != nil {
		set["ahaMoment"] = insightDoc{Text: p.Insight.Text, CreatedAt: p.Insight.CreatedAt}
	}

	var doc conversationDoc
	err = s.conversations().FindOneAndUpdate(ctx, filterFor(oid, owner), bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, conversation.ErrNotFound
		}
		return nil, err
	}
	c := doc.toDomain()
	return &c, nil
}

// AppendMessage relies on the single-document atomicity of $push + $set.
func (s *Store) AppendMessage(ctx context.Context, id, owner string, m conversation.Message) (*conversation.Message, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$push": bson.M{"messages": messageDoc{User: m.User, AI: m.AI, CreatedAt: m.CreatedAt}},
		"$set":  bson.M{"updatedAt": m.CreatedAt},
	}
	res, err := s.conversations().UpdateOne(ctx, filterFor(oid, owner), update)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, conversation.ErrNotFound
	}
	return &m, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id, owner string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.conversations().DeleteOne(ctx, filterFor(oid, owner))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

func (s *Store) ListLegacyMessages(ctx context.Context) ([]conversation.LegacyMessage, error) {
	cur, err := s.messages().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []legacyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]conversation.LegacyMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, conversation.LegacyMessage{ID: d.ID.Hex(), User: d.User, AI: d.AI, CreatedAt: d.CreatedAt})
	}
	return out, nil
}

func (s *Store) InsertLegacyMessage(ctx context.Context, m *conversation.LegacyMessage) error {
	res, err := s.messages().InsertOne(ctx, legacyDoc{User: m.User, AI: m.AI, CreatedAt: m.CreatedAt})
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		m.ID = oid.Hex()
	}
	return nil
}

func (s *Store) DeleteLegacyMessage(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.messages().DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

func (d conversationDoc) toDomain() conversation.Conversation {
	c := conversation.Conversation{
		ID:        d.ID.Hex(),
		OwnerID:   d.UserID,
		Title:     d.Title,
		Messages:  make([]conversation.Message, 0, len(d.Messages)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.AhaMoment != nil {
		c.Insight = &conversation.Insight{Text: d.AhaMoment.Text, CreatedAt: d.AhaMoment.CreatedAt}
	}
	for _, m := range d.Messages {
		c.Messages = append(c.Messages, conversation.Message{User: m.User, AI: m.AI, CreatedAt: m.CreatedAt})
	}
	return c
}
