package document

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ekaya-inc/ekaya-charts/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

const (
	kindMongo              = "mongodb"
	serverSelectionTimeout = 10 * time.Second
	disconnectTimeout      = 5 * time.Second
)

// ClientWrapper wraps *mongo.Client to implement datasource.PoolConnector.
type ClientWrapper struct {
	client *mongo.Client
}

func (w *ClientWrapper) Ping(ctx context.Context) error {
	return w.client.Ping(ctx, readpref.PrimaryPreferred())
}

func (w *ClientWrapper) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return w.client.Disconnect(ctx)
}

func (w *ClientWrapper) GetType() string {
	return kindMongo
}

// Adapter reads documents from a MongoDB database.
type Adapter struct {
	cfg    *Config
	client *mongo.Client
	owned  bool
}

// NewAdapter creates a document store adapter. With a nil connMgr the client
// is owned by the adapter and disconnected on Close.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, connectionID uuid.UUID) (*Adapter, error) {
	uri := cfg.URI()
	poolCfg := datasource.ConnectionManagerConfig{
		PoolMaxConns: datasource.DefaultPoolMaxConns,
		PoolMinConns: datasource.DefaultPoolMinConns,
	}
	if connMgr != nil {
		poolCfg = connMgr.Config()
	}

	create := func(ctx context.Context) (datasource.PoolConnector, error) {
		opts := options.Client().
			ApplyURI(uri).
			SetMaxPoolSize(uint64(poolCfg.PoolMaxConns)).
			SetMinPoolSize(uint64(poolCfg.PoolMinConns)).
			SetServerSelectionTimeout(serverSelectionTimeout)
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &ClientWrapper{client: client}, nil
	}

	var connector datasource.PoolConnector
	var err error
	if connMgr == nil {
		connector, err = create(ctx)
	} else {
		connector, err = connMgr.GetOrCreateConnection(ctx, kindMongo, connectionID, uri, create)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to document store: %w", err)
	}

	wrapper, ok := connector.(*ClientWrapper)
	if !ok {
		return nil, fmt.Errorf("unexpected pool type %T for document store", connector)
	}
	return &Adapter{cfg: cfg, client: wrapper.client, owned: connMgr == nil}, nil
}

// TestConnection pings the server and, when a database is configured,
// lists its collections to confirm the credentials can read it.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if a.cfg.Database == "" {
		return nil
	}
	if _, err := a.client.Database(a.cfg.Database).ListCollectionNames(ctx, bson.D{}); err != nil {
		return fmt.Errorf("list collections failed: %w", err)
	}
	return nil
}

// FetchRecords runs a find or an aggregation pipeline, capped at the row limit.
func (a *Adapter) FetchRecords(ctx context.Context, req datasource.FetchRequest) ([]models.Record, error) {
	if a.cfg.Database == "" {
		return nil, &datasource.MissingParamError{Param: "database"}
	}
	q, err := ParseQuery(req.Query, a.cfg.Collection)
	if err != nil {
		return nil, err
	}

	coll := a.client.Database(a.cfg.Database).Collection(q.Collection)
	limit := q.EffectiveLimit(a.cfg.MaxRows)

	var cursor *mongo.Cursor
	if len(q.Pipeline) > 0 {
		pipeline := make(mongo.Pipeline, 0, len(q.Pipeline)+1)
		pipeline = append(pipeline, q.Pipeline...)
		if limit > 0 {
			pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
		}
		cursor, err = coll.Aggregate(ctx, pipeline)
	} else {
		opts := options.Find()
		if limit > 0 {
			opts.SetLimit(limit)
		}
		if len(q.Sort) > 0 {
			opts.SetSort(q.Sort)
		}
		if len(q.Projection) > 0 {
			opts.SetProjection(q.Projection)
		}
		filter := q.Filter
		if filter == nil {
			filter = bson.D{}
		}
		cursor, err = coll.Find(ctx, filter, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]models.Record, 0)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		records = append(records, toRecord(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return records, nil
}

// Close releases the adapter (but NOT the client if managed).
func (a *Adapter) Close() error {
	if !a.owned || a.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}

var (
	_ datasource.PoolConnector    = (*ClientWrapper)(nil)
	_ datasource.ConnectionTester = (*Adapter)(nil)
	_ datasource.RecordFetcher    = (*Adapter)(nil)
)
