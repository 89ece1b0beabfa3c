package document

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
)

// Query is the JSON document a dataset stores for a document-store source.
// Filters use MongoDB extended JSON, so {"_id": {"$oid": "..."}} works.
//
//	{"collection": "orders", "filter": {"status": "paid"}, "sort": {"createdAt": 1}, "limit": 50}
//	{"collection": "orders", "pipeline": [{"$group": {"_id": "$region", "total": {"$sum": "$amount"}}}]}
type Query struct {
	Collection string   `bson:"collection"`
	Filter     bson.D   `bson:"filter"`
	Sort       bson.D   `bson:"sort"`
	Projection bson.D   `bson:"projection"`
	Limit      int64    `bson:"limit"`
	Pipeline   []bson.D `bson:"pipeline"`
}

// ParseQuery decodes a dataset query. A blank query reads the default collection.
// A malformed query is an *apperrors.ValidationError on the "query" field.
func ParseQuery(raw, defaultCollection string) (*Query, error) {
	q := &Query{}
	if strings.TrimSpace(raw) != "" {
		if err := bson.UnmarshalExtJSON([]byte(raw), false, q); err != nil {
			return nil, invalidQuery("%v", err)
		}
	}

	if q.Collection == "" {
		q.Collection = defaultCollection
	}
	if q.Collection == "" {
		return nil, invalidQuery("collection is required")
	}
	if q.Limit < 0 {
		return nil, invalidQuery("limit must not be negative")
	}
	if len(q.Pipeline) > 0 && (len(q.Filter) > 0 || len(q.Sort) > 0 || len(q.Projection) > 0) {
		return nil, invalidQuery("pipeline cannot be combined with filter, sort or projection")
	}
	for _, stage := range q.Pipeline {
		for _, e := range stage {
			if e.Key == "$out" || e.Key == "$merge" {
				return nil, invalidQuery("%s stages are not allowed", e.Key)
			}
		}
	}
	return q, nil
}

func invalidQuery(format string, args ...any) error {
	return apperrors.InvalidInput("query", fmt.Errorf("invalid document query: "+format, args...))
}

// EffectiveLimit caps the query's own limit at maxRows.
func (q *Query) EffectiveLimit(maxRows int) int64 {
	limit := int64(maxRows)
	if q.Limit > 0 && (limit <= 0 || q.Limit < limit) {
		limit = q.Limit
	}
	return limit
}
