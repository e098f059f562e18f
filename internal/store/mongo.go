package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/gbsr/chappy/internal/models"
)

const (
	userCollection    = "user"
	channelCollection = "channel"
	messageCollection = "message"
)

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	UserName  string             `bson:"userName"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	IsAdmin   bool               `bson:"isAdmin"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type channelDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	ChannelName string             `bson:"channelName"`
	Desc        string             `bson:"desc,omitempty"`
	CreatedBy   string             `bson:"createdBy"`
	IsLocked    bool               `bson:"isLocked"`
	Members     []string           `bson:"members"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

type messageDoc struct {
	ID          primitive.ObjectID  `bson:"_id"`
	ChannelID   *primitive.ObjectID `bson:"channelId"`
	UserID      primitive.ObjectID  `bson:"userId"`
	RecipientID *primitive.ObjectID `bson:"recipientId"`
	Content     string              `bson:"content"`
	TaggedUsers []string            `bson:"taggedUsers"`
	CreatedAt   time.Time           `bson:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt"`
}

type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	channels *mongo.Collection
	messages *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:   client,
		users:    db.Collection(userCollection),
		channels: db.Collection(channelCollection),
		messages: db.Collection(messageCollection),
	}
	if err = s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: options.Index().SetUnique(true)}
	}

	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{unique("userName"), unique("email")}); err != nil {
		return err
	}

	desc := mongo.IndexModel{
		Keys: bson.D{{Key: "desc", Value: 1}},
		Options: options.Index().SetUnique(true).
			SetPartialFilterExpression(bson.M{"desc": bson.M{"$exists": true}}),
	}
	if _, err := s.channels.Indexes().CreateMany(ctx, []mongo.IndexModel{unique("channelName"), desc}); err != nil {
		return err
	}

	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "channelId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "userId", Value: 1}}},
	})
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var dupIndexPattern = regexp.MustCompile(`index: (\w+?)(?:_1|_) `)

// duplicateField extracts the attribute from an E11000 message such as
// "... index: email_1 dup key: { email: \"a@x.io\" }".
func duplicateField(err error) string {
	var we mongo.WriteException
	msg := err.Error()
	if errors.As(err, &we) && len(we.WriteErrors) > 0 {
		msg = we.WriteErrors[0].Message
	}
	m := dupIndexPattern.FindStringSubmatch(msg)
	if m == nil || m[1] == "" {
		return "_id"
	}
	return m[1]
}

func translateMongoErr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return &DuplicateError{Field: duplicateField(err)}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func oid(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return id, nil
}

func optionalOID(hex *string) (*primitive.ObjectID, error) {
	if hex == nil {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(*hex)
	if err != nil {
		return nil, fmt.Errorf("invalid object id %q: %w", *hex, err)
	}
	return &id, nil
}

func optionalHex(id *primitive.ObjectID) *string {
	if id == nil {
		return nil
	}
	h := id.Hex()
	return &h
}

// Users

func toUserDoc(u *models.User) (userDoc, error) {
	id, err := oid(u.ID)
	if err != nil {
		return userDoc{}, fmt.Errorf("invalid user id %q", u.ID)
	}
	return userDoc{
		ID: id, UserName: u.UserName, Email: u.Email, Password: u.PasswordHash,
		IsAdmin: u.IsAdmin, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}, nil
}

func (d *userDoc) model() *models.User {
	return &models.User{
		ID: d.ID.Hex(), UserName: d.UserName, Email: d.Email, PasswordHash: d.Password,
		IsAdmin: d.IsAdmin, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	doc, err := toUserDoc(user)
	if err != nil {
		return err
	}
	if _, err = s.users.InsertOne(ctx, doc); err != nil {
		return translateMongoErr("insert user", err)
	}
	return nil
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translateMongoErr("query user", err)
	}
	return doc.model(), nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	objID, err := oid(id)
	if err != nil {
		return nil, err
	}
	return s.findUser(ctx, bson.M{"_id": objID})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, translateMongoErr("query users", err)
	}
	var docs []userDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, translateMongoErr("decode users", err)
	}
	users := make([]models.User, 0, len(docs))
	for i := range docs {
		users = append(users, *docs[i].model())
	}
	return users, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, user *models.User) error {
	doc, err := toUserDoc(user)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return translateMongoErr("update user", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) deleteByID(ctx context.Context, coll *mongo.Collection, id, what string) error {
	objID, err := oid(id)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return translateMongoErr("delete "+what, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, id string) error {
	return s.deleteByID(ctx, s.users, id, "user")
}

// Channels

func toChannelDoc(c *models.Channel) (channelDoc, error) {
	id, err := oid(c.ID)
	if err != nil {
		return channelDoc{}, fmt.Errorf("invalid channel id %q", c.ID)
	}
	members := c.Members
	if members == nil {
		members = []string{}
	}
	return channelDoc{
		ID: id, ChannelName: c.ChannelName, Desc: c.Desc, CreatedBy: c.CreatedBy,
		IsLocked: c.IsLocked, Members: members, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}, nil
}

func (d *channelDoc) model() *models.Channel {
	members := d.Members
	if members == nil {
		members = []string{}
	}
	return &models.Channel{
		ID: d.ID.Hex(), ChannelName: d.ChannelName, Desc: d.Desc, CreatedBy: d.CreatedBy,
		IsLocked: d.IsLocked, Members: members, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (s *MongoStore) CreateChannel(ctx context.Context, channel *models.Channel) error {
	doc, err := toChannelDoc(channel)
	if err != nil {
		return err
	}
	if _, err = s.channels.InsertOne(ctx, doc); err != nil {
		return translateMongoErr("insert channel", err)
	}
	return nil
}

func (s *MongoStore) GetChannelByID(ctx context.Context, id string) (*models.Channel, error) {
	objID, err := oid(id)
	if err != nil {
		return nil, err
	}
	var doc channelDoc
	if err = s.channels.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		return nil, translateMongoErr("query channel", err)
	}
	return doc.model(), nil
}

func (s *MongoStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	cur, err := s.channels.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, translateMongoErr("query channels", err)
	}
	var docs []channelDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, translateMongoErr("decode channels", err)
	}
	channels := make([]models.Channel, 0, len(docs))
	for i := range docs {
		channels = append(channels, *docs[i].model())
	}
	return channels, nil
}

func (s *MongoStore) UpdateChannel(ctx context.Context, channel *models.Channel) error {
	doc, err := toChannelDoc(channel)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.channels.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return translateMongoErr("update channel", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteChannel(ctx context.Context, id string) error {
	return s.deleteByID(ctx, s.channels, id, "channel")
}

// Messages

func toMessageDoc(m *models.Message) (messageDoc, error) {
	id, err := primitive.ObjectIDFromHex(m.ID)
	if err != nil {
		return messageDoc{}, fmt.Errorf("invalid message id %q: %w", m.ID, err)
	}
	sender, err := primitive.ObjectIDFromHex(m.UserID)
	if err != nil {
		return messageDoc{}, fmt.Errorf("invalid sender id %q: %w", m.UserID, err)
	}
	channelID, err := optionalOID(m.ChannelID)
	if err != nil {
		return messageDoc{}, err
	}
	recipientID, err := optionalOID(m.RecipientID)
	if err != nil {
		return messageDoc{}, err
	}
	tagged := m.TaggedUsers
	if tagged == nil {
		tagged = []string{}
	}
	return messageDoc{
		ID: id, ChannelID: channelID, UserID: sender, RecipientID: recipientID,
		Content: m.Content, TaggedUsers: tagged, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}, nil
}

func (d *messageDoc) model() models.Message {
	tagged := d.TaggedUsers
	if tagged == nil {
		tagged = []string{}
	}
	return models.Message{
		ID: d.ID.Hex(), ChannelID: optionalHex(d.ChannelID), UserID: d.UserID.Hex(),
		RecipientID: optionalHex(d.RecipientID), Content: d.Content, TaggedUsers: tagged,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (s *MongoStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	doc, err := toMessageDoc(msg)
	if err != nil {
		return err
	}
	if _, err = s.messages.InsertOne(ctx, doc); err != nil {
		return translateMongoErr("insert message", err)
	}
	return nil
}

func (s *MongoStore) findMessages(ctx context.Context, filter bson.M) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, translateMongoErr("query messages", err)
	}
	var docs []messageDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, translateMongoErr("decode messages", err)
	}
	msgs := make([]models.Message, 0, len(docs))
	for i := range docs {
		msgs = append(msgs, docs[i].model())
	}
	return msgs, nil
}

func (s *MongoStore) ListChannelMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	objID, err := primitive.ObjectIDFromHex(channelID)
	if err != nil {
		return []models.Message{}, nil
	}
	return s.findMessages(ctx, bson.M{"channelId": objID})
}

func (s *MongoStore) ListDirectMessages(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	me, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []models.Message{}, nil
	}

	filter := bson.M{
		"recipientId": bson.M{"$ne": nil},
		"$or":         bson.A{bson.M{"userId": me}, bson.M{"recipientId": me}},
	}
	if peerID != "" {
		peer, err := primitive.ObjectIDFromHex(peerID)
		if err != nil {
			return []models.Message{}, nil
		}
		filter = bson.M{"$or": bson.A{
			bson.M{"userId": me, "recipientId": peer},
			bson.M{"userId": peer, "recipientId": me},
		}}
	}
	return s.findMessages(ctx, filter)
}
