package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore is the hosted-document-store backend. One collection per record
// kind; the server owns all concurrency control.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects and pings the server. A missing URI or an
// unreachable server is an error here rather than on first use, so a
// misconfigured deployment fails at startup.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, ErrMissingURI
	}
	if database == "" {
		database = "gabriela"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("storage: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("storage: ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) expenses() *mongo.Collection    { return s.db.Collection("expenses") }
func (s *MongoStore) meals() *mongo.Collection       { return s.db.Collection("meals") }
func (s *MongoStore) outOfOffice() *mongo.Collection { return s.db.Collection("out_of_office") }

func (s *MongoStore) AddExpense(ctx context.Context, e Expense) error {
	_, err := s.expenses().InsertOne(ctx, e)
	return err
}

func (s *MongoStore) GetExpenses(ctx context.Context, owner string) ([]Expense, error) {
	cur, err := s.expenses().Find(ctx, bson.M{"owner": owner, "state": ExpensePending})
	if err != nil {
		return nil, err
	}
	var out []Expense
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) CancelPendingExpenses(ctx context.Context, owner string) (int64, error) {
	res, err := s.expenses().UpdateMany(ctx,
		bson.M{"owner": owner, "state": ExpensePending},
		bson.M{"$set": bson.M{"state": ExpenseFinished}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) AddMeal(ctx context.Context, m MealPlan) error {
	_, err := s.meals().InsertOne(ctx, m)
	return err
}

func (s *MongoStore) GetMeals(ctx context.Context, date string) ([]MealPlan, error) {
	filter := bson.M{}
	if date != "" {
		filter["date"] = date
	}
	cur, err := s.meals().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []MealPlan
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) AddOutOfOffice(ctx context.Context, o OutOfOfficeEntry) error {
	_, err := s.outOfOffice().InsertOne(ctx, o)
	return err
}

func (s *MongoStore) GetOutOfOffice(ctx context.Context, teamMember, date string) ([]OutOfOfficeEntry, error) {
	filter := bson.M{}
	if teamMember != "" {
		filter["team_member"] = teamMember
	}
	if date != "" {
		filter["date"] = date
	}
	cur, err := s.outOfOffice().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []OutOfOfficeEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
