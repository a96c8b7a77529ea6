package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vncsmyrnk/pollstream/internal/core/domain"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
)

type pollDocument struct {
	ID        string           `bson:"_id"`
	Question  string           `bson:"question"`
	Options   []optionDocument `bson:"options"`
	Likes     int64            `bson:"likes"`
	CreatedAt time.Time        `bson:"createdAt"`
	UpdatedAt time.Time        `bson:"updatedAt"`
}

type optionDocument struct {
	Text  string `bson:"text"`
	Votes int64  `bson:"votes"`
}

func toDocument(p *domain.Poll) pollDocument {
	doc := pollDocument{
		ID:        p.ID.String(),
		Question:  p.Question,
		Options:   make([]optionDocument, len(p.Options)),
		Likes:     p.Likes,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for i, o := range p.Options {
		doc.Options[i] = optionDocument{Text: o.Text, Votes: o.Votes}
	}
	return doc
}

func (d pollDocument) toDomain() (*domain.Poll, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid poll id %q in store: %w", d.ID, err)
	}
	p := &domain.Poll{
		ID:        id,
		Question:  d.Question,
		Options:   make([]domain.Option, len(d.Options)),
		Likes:     d.Likes,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for i, o := range d.Options {
		p.Options[i] = domain.Option{Text: o.Text, Votes: o.Votes}
	}
	return p, nil
}

type pollRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
	clock  clockwork.Clock
}

func NewPollRepository(client *mongo.Client, database string, clock clockwork.Clock) ports.PollRepository {
	return &pollRepository{
		client: client,
		coll:   client.Database(database).Collection(pollsCollection),
		clock:  clock,
	}
}

func (r *pollRepository) Insert(ctx context.Context, poll *domain.Poll) (*domain.Poll, error) {
	if _, err := r.coll.InsertOne(ctx, toDocument(poll)); err != nil {
		return nil, classify("insert poll", err)
	}
	return poll.Clone(), nil
}

func (r *pollRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	var doc pollDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPollNotFound
		}
		return nil, classify("get poll", err)
	}
	return doc.toDomain()
}

func (r *pollRepository) FindAllOrderedByCreationDesc(ctx context.Context) ([]*domain.Poll, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, classify("list polls", err)
	}
	defer cursor.Close(ctx)

	var docs []pollDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("decode polls", err)
	}

	polls := make([]*domain.Poll, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	return polls, nil
}

// Increment issues a single $inc so the server applies concurrent increments
// without losing any. The filter requires the option to exist, otherwise $inc
// would grow the options array.
func (r *pollRepository) Increment(ctx context.Context, id uuid.UUID, counter domain.Counter, amount int64) (*domain.Poll, error) {
	if amount < 0 {
		return nil, fmt.Errorf("counters never decrease: %d", amount)
	}

	filter := bson.M{"_id": id.String()}
	if !counter.IsLikes() {
		if counter.OptionIndex() < 0 {
			return nil, domain.ErrInvalidOption
		}
		filter[fmt.Sprintf("options.%d", counter.OptionIndex())] = bson.M{"$exists": true}
	}

	update := bson.M{
		"$inc": bson.M{counter.Path(): amount},
		"$set": bson.M{"updatedAt": domain.Timestamp(r.clock.Now())},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc pollDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, classify("increment "+counter.Path(), err)
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return nil, classify("count poll", err)
	}
	if n == 0 {
		return nil, domain.ErrPollNotFound
	}
	return nil, domain.ErrInvalidOption
}

func (r *pollRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping mongo: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
