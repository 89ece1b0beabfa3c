package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

// ExtractPath walks a dotted path ("data.items", "results.0.rows") into a
// decoded JSON value. An empty path returns v unchanged.
func ExtractPath(v any, dataPath string) (any, error) {
	dataPath = strings.Trim(strings.TrimSpace(dataPath), ".")
	if dataPath == "" {
		return v, nil
	}

	cur := v
	for _, seg := range strings.Split(dataPath, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("dataPath %q: key %q not found", dataPath, seg)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("dataPath %q: index %q out of range", dataPath, seg)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("dataPath %q: cannot descend into %q", dataPath, seg)
		}
	}
	return cur, nil
}

// ToRecords turns a decoded JSON value into records. Arrays yield one record
// per element, objects a single record, and scalars {"value": v}.
// maxRows <= 0 means no cap.
func ToRecords(v any, maxRows int) []models.Record {
	records := make([]models.Record, 0)
	switch val := v.(type) {
	case nil:
	case []any:
		for _, item := range val {
			if maxRows > 0 && len(records) >= maxRows {
				break
			}
			records = append(records, toRecord(item))
		}
	default:
		records = append(records, toRecord(val))
	}
	return records
}

func toRecord(v any) models.Record {
	if m, ok := v.(map[string]any); ok {
		return models.Record(m)
	}
	return models.Record{"value": v}
}
