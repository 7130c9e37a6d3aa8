package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/razorphish/core-api-sub000/internal/domain"
)

const (
	accountsCollection = "users"
	clientsCollection  = "clients"
	tokensCollection   = "tokens"
)

// Compile-time interface assertions.
var (
	_ AccountRepository = (*MongoAccountRepo)(nil)
	_ ClientRepository  = (*MongoClientRepo)(nil)
	_ TokenRepository   = (*MongoTokenRepo)(nil)
)

// OpenMongo connects to MongoDB, ensures indexes and returns the store.
func OpenMongo(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	if err := EnsureMongoIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &Store{
		Accounts: NewMongoAccountRepo(db),
		Clients:  NewMongoClientRepo(db),
		Tokens:   NewMongoTokenRepo(db),
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
		Close: client.Disconnect,
	}, nil
}

// EnsureMongoIndexes creates the unique lookup keys and the token TTL index.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		accountsCollection: {
			{Keys: bson.D{{Key: "normalizedUsername", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "normalizedEmail", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		clientsCollection: {
			{Keys: bson.D{{Key: "clientId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		tokensCollection: {
			{Keys: bson.D{{Key: "value", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "clientId", Value: 1}}},
			{Keys: bson.D{{Key: "dateExpire", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// MongoAccountRepo implements AccountRepository.
type MongoAccountRepo struct {
	coll *mongo.Collection
}

func NewMongoAccountRepo(db *mongo.Database) *MongoAccountRepo {
	return &MongoAccountRepo{coll: db.Collection(accountsCollection)}
}

func (r *MongoAccountRepo) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	normalized := domain.NormalizeIdentifier(username)
	filter := bson.M{"$or": bson.A{
		bson.M{"normalizedUsername": normalized},
		bson.M{"normalizedEmail": normalized},
	}}
	var account domain.Account
	if err := r.coll.FindOne(ctx, filter).Decode(&account); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (r *MongoAccountRepo) GetByID(ctx context.Context, id string) (domain.Account, error) {
	var account domain.Account
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&account); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

func (r *MongoAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	account.Normalize()
	if _, err := r.coll.InsertOne(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func (r *MongoAccountRepo) UpdatePassword(ctx context.Context, id, hash, salt string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password":  hash,
		"salt":      salt,
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *MongoAccountRepo) ApplyLoginUpdate(ctx context.Context, id string, update domain.LoginUpdate) error {
	now := time.Now().UTC()
	var doc bson.M
	switch update.Kind {
	case domain.LoginNoop:
		return nil
	case domain.LoginIncrement:
		set := bson.M{"updatedAt": now}
		if update.LockUntil != nil {
			set["lockUntil"] = update.LockUntil.UTC()
		}
		doc = bson.M{"$inc": bson.M{"loginAttempts": 1}, "$set": set}
	case domain.LoginRestart:
		doc = bson.M{"$set": bson.M{"loginAttempts": 1, "updatedAt": now}, "$unset": bson.M{"lockUntil": ""}}
	case domain.LoginReset:
		doc = bson.M{"$set": bson.M{"loginAttempts": 0, "updatedAt": now}, "$unset": bson.M{"lockUntil": ""}}
	default:
		return fmt.Errorf("unknown login update kind %d", update.Kind)
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return fmt.Errorf("apply login update: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// MongoClientRepo implements ClientRepository.
type MongoClientRepo struct {
	coll *mongo.Collection
}

func NewMongoClientRepo(db *mongo.Database) *MongoClientRepo {
	return &MongoClientRepo{coll: db.Collection(clientsCollection)}
}

func (r *MongoClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.Client, error) {
	var client domain.Client
	if err := r.coll.FindOne(ctx, bson.M{"clientId": clientID}).Decode(&client); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Client{}, domain.ErrClientNotFound
		}
		return domain.Client{}, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

func (r *MongoClientRepo) Upsert(ctx context.Context, client domain.Client) error {
	existing, err := r.GetByClientID(ctx, client.ClientID)
	switch {
	case err == nil:
		// _id is immutable; keep the stored one.
		client.ID = existing.ID
		client.CreatedAt = existing.CreatedAt
	case !errors.Is(err, domain.ErrClientNotFound):
		return err
	}

	_, err = r.coll.ReplaceOne(ctx, bson.M{"clientId": client.ClientID}, client, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

// MongoTokenRepo implements TokenRepository.
type MongoTokenRepo struct {
	coll *mongo.Collection
}

func NewMongoTokenRepo(db *mongo.Database) *MongoTokenRepo {
	return &MongoTokenRepo{coll: db.Collection(tokensCollection)}
}

func (r *MongoTokenRepo) Create(ctx context.Context, token domain.Token) error {
	if _, err := r.coll.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *MongoTokenRepo) GetByValue(ctx context.Context, digest string) (domain.Token, error) {
	var token domain.Token
	if err := r.coll.FindOne(ctx, bson.M{"value": digest}).Decode(&token); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Token{}, domain.ErrTokenNotFound
		}
		return domain.Token{}, fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

func (r *MongoTokenRepo) DeleteByValue(ctx context.Context, digest string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"value": digest}); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (r *MongoTokenRepo) DeleteByUser(ctx context.Context, userID string) ([]string, error) {
	return r.deleteCollect(ctx, bson.M{"userId": userID})
}

func (r *MongoTokenRepo) DeleteByClientSubject(ctx context.Context, clientID string) ([]string, error) {
	return r.deleteCollect(ctx, clientSubjectFilter(clientID))
}

// deleteCollect removes only the documents it read first, so a token inserted
// between the read and the delete survives and is never reported.
func (r *MongoTokenRepo) deleteCollect(ctx context.Context, filter bson.M) ([]string, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"value": 1}))
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	var docs []struct {
		Value string `bson:"value"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	digests := make([]string, 0, len(docs))
	for _, d := range docs {
		digests = append(digests, d.Value)
	}
	if _, err := r.coll.DeleteMany(ctx, bson.M{"value": bson.M{"$in": digests}}); err != nil {
		return nil, fmt.Errorf("delete tokens: %w", err)
	}
	return digests, nil
}

func (r *MongoTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return r.deleteMany(ctx, bson.M{"dateExpire": bson.M{"$lt": before.UTC()}})
}

func (r *MongoTokenRepo) deleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete tokens: %w", err)
	}
	return res.DeletedCount, nil
}

// Tokens minted for a client itself carry no userId.
func clientSubjectFilter(clientID string) bson.M {
	return bson.M{"clientId": clientID, "userId": bson.M{"$exists": false}}
}
