package clients

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/gatehouse-api/gatehouse/models"
)

const (
	invitesCollection   = "invites"
	remindersCollection = "reminders"
	accountsCollection  = "accounts"
)

type (
	// MongoConfig describes how to reach the backing database.
	MongoConfig struct {
		ConnectionString string `split_words:"true" required:"true"`
		Database         string `default:"gatehouse"`
		TimeoutSeconds   int    `split_words:"true" default:"10"`
	}

	MongoStoreClient struct {
		client     *mongo.Client
		invitesC   *mongo.Collection
		remindersC *mongo.Collection
		accountsC  *mongo.Collection
		logger     *zap.SugaredLogger
	}
)

// NewMongoStoreClient connects and ensures the indexes the invariants rely
// on, most importantly the unique partial index on pendingKey.
func NewMongoStoreClient(config *MongoConfig, logger *zap.SugaredLogger) (*MongoStoreClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.TimeoutSeconds)*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.ConnectionString))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}

	db := client.Database(config.Database)
	store := &MongoStoreClient{
		client:     client,
		invitesC:   db.Collection(invitesCollection),
		remindersC: db.Collection(remindersCollection),
		accountsC:  db.Collection(accountsCollection),
		logger:     logger,
	}

	if err := store.ensureIndexes(ctx); err != nil {
		return nil, errors.Wrap(err, "ensuring indexes")
	}
	return store, nil
}

func (d *MongoStoreClient) ensureIndexes(ctx context.Context) error {
	_, err := d.invitesC.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// at most one pending invite per normalized email
			Keys: bson.D{{Key: "pendingKey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"pendingKey": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "credentialDigest", Value: 1}}},
		{Keys: bson.D{{Key: "normalizedEmail", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = d.remindersC.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "inviteId", Value: 1}}},
		{Keys: bson.D{{Key: "sentBy", Value: 1}, {Key: "sentAt", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = d.accountsC.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "normalizedEmail", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (d *MongoStoreClient) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

func (d *MongoStoreClient) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

func (d *MongoStoreClient) UpsertPendingInvite(ctx context.Context, invite *models.Invite) (*models.Invite, error) {
	if invite.PendingKey == nil {
		return nil, errors.New("invite has no pending key")
	}

	update := bson.M{
		"$set": bson.M{
			"email":            invite.Email,
			"normalizedEmail":  invite.NormalizedEmail,
			"fullName":         invite.FullName,
			"role":             invite.Role,
			"status":           invite.Status,
			"reminderCount":    invite.ReminderCount,
			"channels":         invite.Channels,
			"createdBy":        invite.CreatedBy,
			"createdAt":        invite.CreatedAt,
			"expiresAt":        invite.ExpiresAt,
			"credentialDigest": invite.CredentialDigest,
			"pendingKey":       *invite.PendingKey,
		},
		"$unset": bson.M{
			"lastSentAt": "",
			"lastSentBy": "",
			"usedAt":     "",
			"revokedAt":  "",
		},
		"$setOnInsert": bson.M{"_id": invite.ID},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	result := &models.Invite{}
	err := d.invitesC.FindOneAndUpdate(ctx, bson.M{"pendingKey": *invite.PendingKey}, update, opts).Decode(result)
	if err != nil {
		return nil, errors.Wrap(err, "upserting invite")
	}
	return result, nil
}

func (d *MongoStoreClient) FindInviteByID(ctx context.Context, id string) (*models.Invite, error) {
	return d.findInvite(ctx, bson.M{"_id": id})
}

func (d *MongoStoreClient) FindInviteByDigest(ctx context.Context, digest string) (*models.Invite, error) {
	return d.findInvite(ctx, bson.M{"credentialDigest": digest})
}

func (d *MongoStoreClient) findInvite(ctx context.Context, query bson.M) (*models.Invite, error) {
	result := &models.Invite{}
	err := d.invitesC.FindOne(ctx, query).Decode(result)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding invite")
	}
	return result, nil
}

func (d *MongoStoreClient) FindInvitesByEmail(ctx context.Context, normalizedEmail string) ([]*models.Invite, error) {
	cursor, err := d.invitesC.Find(ctx, bson.M{"normalizedEmail": normalizedEmail},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "finding invites by email")
	}
	var results []*models.Invite
	if err := cursor.All(ctx, &results); err != nil {
		return nil, errors.Wrap(err, "decoding invites")
	}
	return results, nil
}

func (d *MongoStoreClient) ListInvites(ctx context.Context, params ListInvitesParams) ([]*models.Invite, int64, error) {
	query := bson.M{}
	if len(params.Statuses) > 0 {
		query["status"] = bson.M{"$in": params.Statuses}
	}
	if params.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(params.Search), Options: "i"}
		query["$or"] = []bson.M{
			{"email": pattern},
			{"fullName": pattern},
		}
	}

	total, err := d.invitesC.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting invites")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(params.Offset).
		SetLimit(params.Limit)
	cursor, err := d.invitesC.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing invites")
	}
	var results []*models.Invite
	if err := cursor.All(ctx, &results); err != nil {
		return nil, 0, errors.Wrap(err, "decoding invites")
	}
	return results, total, nil
}

func (d *MongoStoreClient) RecordReminder(ctx context.Context, update ReminderUpdate) (*models.Invite, error) {
	session, err := d.client.StartSession()
	if err != nil {
		return nil, errors.Wrap(err, "starting session")
	}
	defer session.EndSession(ctx)

	var result *models.Invite
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		current := &models.Invite{}
		err := d.invitesC.FindOne(sc, bson.M{"_id": update.InviteID}).Decode(current)
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "finding invite")
		}

		// the cap bound lives in the filter so the increment cannot race past
		// it; losers of the race simply match nothing
		filter := bson.M{
			"_id":           update.InviteID,
			"status":        bson.M{"$nin": []models.Status{models.StatusAccepted, models.StatusRevoked}},
			"reminderCount": bson.M{"$lt": update.ReminderCap},
		}
		mutation := bson.M{
			"$inc": bson.M{"reminderCount": 1},
			"$set": bson.M{
				"status":           models.StatusPending,
				"credentialDigest": update.Digest,
				"lastSentAt":       update.SentAt,
				"lastSentBy":       update.Actor,
				"expiresAt":        update.ExpiresAt,
				"channels":         update.Channels,
				"pendingKey":       current.NormalizedEmail,
			},
			"$unset": bson.M{"revokedAt": ""},
		}

		updated := &models.Invite{}
		err = d.invitesC.FindOneAndUpdate(sc, filter, mutation,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(updated)
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "updating invite")
		}

		record := models.NewReminderRecord(update.InviteID, update.Actor, update.Channels, update.Reactivated, update.SentAt)
		if _, err := d.remindersC.InsertOne(sc, record); err != nil {
			return nil, errors.Wrap(err, "appending reminder record")
		}

		result = updated
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *MongoStoreClient) RevokeInvite(ctx context.Context, id string, now time.Time) (*models.Invite, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$nin": []models.Status{models.StatusAccepted, models.StatusRevoked}},
	}
	update := bson.M{
		"$set":   bson.M{"status": models.StatusRevoked, "revokedAt": now},
		"$unset": bson.M{"pendingKey": ""},
	}

	result := &models.Invite{}
	err := d.invitesC.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(result)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "revoking invite")
	}
	return result, nil
}

func (d *MongoStoreClient) AcceptInvite(ctx context.Context, update AcceptUpdate) (*models.Invite, error) {
	session, err := d.client.StartSession()
	if err != nil {
		return nil, errors.Wrap(err, "starting session")
	}
	defer session.EndSession(ctx)

	var result *models.Invite
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// the digest pin makes a credential rotated away by a concurrent
		// resend match nothing, and the used-at-null guard makes the
		// invite single use
		filter := bson.M{
			"_id":              update.InviteID,
			"credentialDigest": update.Digest,
			"status":           bson.M{"$nin": []models.Status{models.StatusAccepted, models.StatusRevoked}},
			"usedAt":           nil,
			"expiresAt":        bson.M{"$gt": update.UsedAt},
		}
		mutation := bson.M{
			"$set":   bson.M{"status": models.StatusAccepted, "usedAt": update.UsedAt},
			"$unset": bson.M{"pendingKey": ""},
		}

		updated := &models.Invite{}
		err := d.invitesC.FindOneAndUpdate(sc, filter, mutation,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(updated)
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "marking invite used")
		}

		// a failed insert aborts the transaction, so the invite mutation
		// above rolls back with it
		if _, err := d.accountsC.InsertOne(sc, update.Account); err != nil {
			return nil, errors.Wrap(err, "creating account")
		}

		result = updated
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *MongoStoreClient) MarkInvitesExpired(ctx context.Context, now time.Time) (int64, error) {
	// pendingKey stays set: an expired row still blocks a duplicate pending
	// row and remains resendable
	result, err := d.invitesC.UpdateMany(ctx,
		bson.M{"status": models.StatusPending, "expiresAt": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": models.StatusExpired}})
	if err != nil {
		return 0, errors.Wrap(err, "marking invites expired")
	}
	return result.ModifiedCount, nil
}

func (d *MongoStoreClient) FindRemindersByInvite(ctx context.Context, inviteID string) ([]*models.ReminderRecord, error) {
	cursor, err := d.remindersC.Find(ctx, bson.M{"inviteId": inviteID},
		options.Find().SetSort(bson.D{{Key: "sentAt", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "finding reminder records")
	}
	var results []*models.ReminderRecord
	if err := cursor.All(ctx, &results); err != nil {
		return nil, errors.Wrap(err, "decoding reminder records")
	}
	return results, nil
}

func (d *MongoStoreClient) CountRecentRemindersByActor(ctx context.Context, actor string, since time.Time) (int64, error) {
	count, err := d.remindersC.CountDocuments(ctx, bson.M{
		"sentBy": actor,
		"sentAt": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, errors.Wrap(err, "counting reminders by actor")
	}
	return count, nil
}

func (d *MongoStoreClient) FindAccountByEmail(ctx context.Context, normalizedEmail string) (*models.Account, error) {
	result := &models.Account{}
	err := d.accountsC.FindOne(ctx, bson.M{"normalizedEmail": normalizedEmail}).Decode(result)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding account")
	}
	return result, nil
}

func (d *MongoStoreClient) ListAccounts(ctx context.Context, params ListAccountsParams) ([]*models.Account, int64, error) {
	query := bson.M{}
	if len(params.Statuses) > 0 {
		query["status"] = bson.M{"$in": params.Statuses}
	}
	if params.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(params.Search), Options: "i"}
		query["$or"] = []bson.M{
			{"email": pattern},
			{"fullName": pattern},
		}
	}

	total, err := d.accountsC.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting accounts")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(params.Offset).
		SetLimit(params.Limit)
	cursor, err := d.accountsC.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing accounts")
	}
	var results []*models.Account
	if err := cursor.All(ctx, &results); err != nil {
		return nil, 0, errors.Wrap(err, "decoding accounts")
	}
	return results, total, nil
}
