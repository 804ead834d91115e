package store

import (
	"context"
	"time"

	"cardpricer/worker/internal/model"
	"cardpricer/worker/logger"
	apperr "cardpricer/worker/pkg/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	colProducts     = "products"
	colPriceHistory = "priceHistory"
	colCTraderData  = "ctraderData"
	colExpansions   = "expansions"
)

// Config holds the storage connection settings
type Config struct {
	URI      string
	Database string
}

// Store wraps the MongoDB handle shared by the ingestion and scraping paths
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

// Connect establishes the MongoDB connection and verifies it with a ping
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, apperr.NewConfiguration("MONGO_URI is not configured", nil)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, apperr.NewPersistence("store", "failed to connect to mongodb", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, apperr.NewPersistence("store", "mongodb ping failed", err)
	}

	s := &Store{
		client: client,
		db:     client.Database(cfg.Database),
		log:    logger.ForStore(),
	}
	s.log.Info().Str("database", cfg.Database).Msg("Connected to MongoDB")
	return s, nil
}

// Close releases the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// UpsertProducts writes the catalog in one unordered bulk operation, one
// upsert per product keyed by idProduct. Managed fields are overwritten as
// a whole so enrichment that missed this run does not linger from the last
// one; the scrape side-channel fields are left untouched.
func (s *Store) UpsertProducts(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(products))
	for _, p := range products {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"idProduct": p.IDProduct}).
			SetUpdate(bson.M{"$set": productDocument(p)}).
			SetUpsert(true))
	}

	_, err := s.db.Collection(colProducts).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return apperr.NewPersistence("store", "product bulk upsert failed", err)
	}
	s.log.Debug().Int("count", len(products)).Msg("Upserted products")
	return nil
}

func productDocument(p model.Product) bson.M {
	return bson.M{
		"idProduct":       p.IDProduct,
		"name":            p.Name,
		"idCategory":      p.IDCategory,
		"categoryName":    p.CategoryName,
		"idExpansion":     p.IDExpansion,
		"idMetacard":      p.IDMetacard,
		"dateAdded":       p.DateAdded,
		"cardCode":        p.CardCode,
		"blueprintId":     p.BlueprintID,
		"externalUrl":     p.ExternalURL,
		"fixedProperties": p.FixedProperties,
	}
}

// InsertPriceRecords appends one observation per product to the price
// history. The collection is insert-only.
func (s *Store) InsertPriceRecords(ctx context.Context, records []model.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		docs = append(docs, r)
	}

	_, err := s.db.Collection(colPriceHistory).InsertMany(ctx, docs)
	if err != nil {
		return apperr.NewPersistence("store", "price record insert failed", err)
	}
	s.log.Debug().Int("count", len(records)).Msg("Inserted price records")
	return nil
}

// LatestPrice returns the most recent stored observation for a product,
// or nil when the product has no history yet.
func (s *Store) LatestPrice(ctx context.Context, idProduct int) (*model.PriceRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var record model.PriceRecord
	err := s.db.Collection(colPriceHistory).FindOne(ctx, bson.M{"idProduct": idProduct}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.NewPersistence("store", "latest price lookup failed", err)
	}
	return &record, nil
}

// Products returns stored catalog entries ordered by idProduct.
// A limit of 0 returns everything.
func (s *Store) Products(ctx context.Context, limit int64) ([]model.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "idProduct", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.db.Collection(colProducts).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, apperr.NewPersistence("store", "product listing failed", err)
	}
	defer cursor.Close(ctx)

	var products []model.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, apperr.NewPersistence("store", "product cursor decode failed", err)
	}
	return products, nil
}

// AttachSnapshot overwrites a product's scrape cache and bumps lastScraped
func (s *Store) AttachSnapshot(ctx context.Context, idProduct int, snap *model.ScrapedSnapshot, at time.Time) error {
	_, err := s.db.Collection(colProducts).UpdateOne(ctx,
		bson.M{"idProduct": idProduct},
		bson.M{"$set": bson.M{"scrapedData": snap, "lastScraped": at}})
	if err != nil {
		return apperr.NewPersistence("store", "snapshot attach failed", err)
	}
	return nil
}

// BlueprintByProductID finds the cross-reference entry whose
// card_market_ids array contains the given product id. A miss is nil, nil.
func (s *Store) BlueprintByProductID(ctx context.Context, idProduct int) (*model.Blueprint, error) {
	var bp model.Blueprint
	err := s.db.Collection(colCTraderData).FindOne(ctx, bson.M{"card_market_ids": idProduct}).Decode(&bp)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.NewPersistence("store", "blueprint lookup failed", err)
	}
	return &bp, nil
}

// UpsertBlueprints refreshes the cross-reference collection, one upsert
// per blueprint keyed by its external id
func (s *Store) UpsertBlueprints(ctx context.Context, blueprints []model.Blueprint) error {
	if len(blueprints) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(blueprints))
	for _, bp := range blueprints {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": bp.ID}).
			SetUpdate(bson.M{"$set": bp}).
			SetUpsert(true))
	}

	_, err := s.db.Collection(colCTraderData).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return apperr.NewPersistence("store", "blueprint bulk upsert failed", err)
	}
	s.log.Debug().Int("count", len(blueprints)).Msg("Upserted blueprints")
	return nil
}

// Expansions returns the known card sets used to page the cross-reference
// export
func (s *Store) Expansions(ctx context.Context) ([]model.Expansion, error) {
	cursor, err := s.db.Collection(colExpansions).Find(ctx, bson.M{})
	if err != nil {
		return nil, apperr.NewPersistence("store", "expansion listing failed", err)
	}
	defer cursor.Close(ctx)

	var expansions []model.Expansion
	if err := cursor.All(ctx, &expansions); err != nil {
		return nil, apperr.NewPersistence("store", "expansion cursor decode failed", err)
	}
	return expansions, nil
}
