package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
)

const (
	batchesCollection   = "batches"
	templatesCollection = "stage_templates"
	ledgerCollection    = "cost_ledger"
	reportsCollection   = "cost_reports"
)

// Repository defines the traceability data the costing service reads and writes.
type Repository interface {
	LoadLineage(ctx context.Context, rootID string) ([]models.BatchRecord, error)
	ListRootIDs(ctx context.Context) ([]string, error)
	LoadStageTemplates(ctx context.Context) (models.StageTemplates, error)
	LoadLedger(ctx context.Context, nodeIDs []string) (models.CostLedger, error)
	SaveCostEntry(ctx context.Context, nodeID string, entry models.CostEntry) error
	SaveCostReport(ctx context.Context, report models.CostReport) error
}

// templateDocument stores the ordered stages of one product template.
type templateDocument struct {
	TemplateID string                   `bson:"_id"`
	Stages     []models.StageDefinition `bson:"stages"`
}

// ledgerDocument stores the direct costs of one batch node.
type ledgerDocument struct {
	NodeID           string `bson:"_id"`
	models.CostEntry `bson:",inline"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

// MongoDBRepository implements the Repository interface for MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoDBRepository connects to MongoDB and verifies the connection.
//
// Embedded documents decode as bson.M so wrapped field values ({value, unit})
// inside batch data stay map-shaped.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetBSONOptions(bsonOptions())

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return newRepository(client.Database(dbName), logger), nil
}

func newRepository(db *mongo.Database, logger *zap.Logger) *MongoDBRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoDBRepository{
		client: db.Client(),
		db:     db,
		logger: logger,
	}
}

func bsonOptions() *options.BSONOptions {
	return &options.BSONOptions{DefaultDocumentM: true}
}

// LoadLineage returns every batch record belonging to the lineage of rootID.
func (r *MongoDBRepository) LoadLineage(ctx context.Context, rootID string) ([]models.BatchRecord, error) {
	filter := bson.M{"$or": []bson.M{{"_id": rootID}, {"root_id": rootID}}}

	cursor, err := r.db.Collection(batchesCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find lineage %s: %w", rootID, err)
	}

	var records []models.BatchRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode lineage %s: %w", rootID, err)
	}

	r.logger.Debug("lineage loaded", zap.String("root_id", rootID), zap.Int("records", len(records)))
	return records, nil
}

// ListRootIDs returns the ids of batches without a parent, in id order.
func (r *MongoDBRepository) ListRootIDs(ctx context.Context) ([]string, error) {
	filter := bson.M{"$or": []bson.M{
		{"parent_id": bson.M{"$exists": false}},
		{"parent_id": ""},
	}}
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.db.Collection(batchesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find root batches: %w", err)
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode root batches: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// LoadStageTemplates returns every template's stages ordered by Orden.
func (r *MongoDBRepository) LoadStageTemplates(ctx context.Context) (models.StageTemplates, error) {
	cursor, err := r.db.Collection(templatesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find stage templates: %w", err)
	}

	var docs []templateDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode stage templates: %w", err)
	}

	templates := make(models.StageTemplates, len(docs))
	for _, doc := range docs {
		templates[doc.TemplateID] = doc.Stages
	}
	templates.SortByOrder()
	return templates, nil
}

// LoadLedger returns the cost entries recorded for the given nodes. Nodes
// without an entry are simply absent from the ledger.
func (r *MongoDBRepository) LoadLedger(ctx context.Context, nodeIDs []string) (models.CostLedger, error) {
	ledger := make(models.CostLedger, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return ledger, nil
	}

	cursor, err := r.db.Collection(ledgerCollection).Find(ctx, bson.M{"_id": bson.M{"$in": nodeIDs}})
	if err != nil {
		return nil, fmt.Errorf("find cost entries: %w", err)
	}

	var docs []ledgerDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode cost entries: %w", err)
	}

	for _, doc := range docs {
		ledger.Set(doc.NodeID, doc.CostEntry)
	}
	return ledger, nil
}

// SaveCostEntry upserts the direct costs of a node.
func (r *MongoDBRepository) SaveCostEntry(ctx context.Context, nodeID string, entry models.CostEntry) error {
	doc := ledgerDocument{NodeID: nodeID, CostEntry: entry, UpdatedAt: time.Now().UTC()}

	_, err := r.db.Collection(ledgerCollection).ReplaceOne(ctx, bson.M{"_id": nodeID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert cost entry %s: %w", nodeID, err)
	}
	return nil
}

// SaveCostReport stores a costing snapshot.
func (r *MongoDBRepository) SaveCostReport(ctx context.Context, report models.CostReport) error {
	if _, err := r.db.Collection(reportsCollection).InsertOne(ctx, report); err != nil {
		return fmt.Errorf("failed to insert cost report: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
