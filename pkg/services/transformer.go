package services

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-charts/pkg/models"
)

type filterOp string

const (
	opEq       filterOp = "eq"
	opNe       filterOp = "ne"
	opGt       filterOp = "gt"
	opGte      filterOp = "gte"
	opLt       filterOp = "lt"
	opLte      filterOp = "lte"
	opContains filterOp = "contains"
	opIn       filterOp = "in"
)

var filterOps = map[string]filterOp{
	"=": opEq, "==": opEq, "eq": opEq,
	"!=": opNe, "ne": opNe,
	">": opGt, "gt": opGt,
	">=": opGte, "gte": opGte,
	"<": opLt, "lt": opLt,
	"<=": opLte, "lte": opLte,
	"contains": opContains,
	"in":       opIn,
}

func parseOp(op string) (filterOp, bool) {
	o, ok := filterOps[strings.ToLower(strings.TrimSpace(op))]
	return o, ok
}

// ValidateFilters rejects filters with an empty field, an unknown operator,
// or an "in" filter whose value is not a list.
func ValidateFilters(filters []models.Filter) error {
	var fields []apperrors.FieldError
	for i, f := range filters {
		if strings.TrimSpace(f.Field) == "" {
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("filters[%d].field", i),
				Message: "field is required",
			})
		}
		op, ok := parseOp(f.Op)
		if !ok {
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("filters[%d].op", i),
				Message: fmt.Sprintf("unsupported operator %q", f.Op),
			})
			continue
		}
		if op == opIn {
			if _, ok := asList(f.Value); !ok {
				fields = append(fields, apperrors.FieldError{
					Field:   fmt.Sprintf("filters[%d].value", i),
					Message: "value must be a list for operator \"in\"",
				})
			}
		}
	}
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}
	return nil
}

// Transform filters records (all filters must match) and projects each
// survivor to {x: record[xAxis], y: record[yAxis]}, keeping source order.
// A missing axis field yields a nil coordinate rather than dropping the record.
func Transform(records []models.Record, xAxis, yAxis string, filters []models.Filter) ([]models.Point, error) {
	if err := ValidateFilters(filters); err != nil {
		return nil, err
	}

	series := make([]models.Point, 0, len(records))
	for _, rec := range records {
		if !matchesAll(rec, filters) {
			continue
		}
		series = append(series, models.Point{X: rec[xAxis], Y: rec[yAxis]})
	}
	return series, nil
}

func matchesAll(rec models.Record, filters []models.Filter) bool {
	for _, f := range filters {
		if !matches(rec, f) {
			return false
		}
	}
	return true
}

func matches(rec models.Record, f models.Filter) bool {
	value, present := rec[f.Field]
	if !present {
		return false
	}
	op, _ := parseOp(f.Op)

	switch op {
	case opEq:
		return equal(value, f.Value)
	case opNe:
		return !equal(value, f.Value)
	case opGt, opGte, opLt, opLte:
		cmp, ok := compare(value, f.Value)
		if !ok {
			return false
		}
		switch op {
		case opGt:
			return cmp > 0
		case opGte:
			return cmp >= 0
		case opLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case opContains:
		return contains(value, f.Value)
	case opIn:
		list, _ := asList(f.Value)
		for _, candidate := range list {
			if equal(value, candidate) {
				return true
			}
		}
		return false
	}
	return false
}

func equal(recordValue, filterValue any) bool {
	if recordValue == nil || filterValue == nil {
		return recordValue == nil && filterValue == nil
	}
	cmp, ok := compare(recordValue, filterValue)
	return ok && cmp == 0
}

// compare orders a record value against a filter value: numerically when both
// are numbers, chronologically when the record holds a time, otherwise by
// string form. ok is false when either side is nil.
func compare(recordValue, filterValue any) (int, bool) {
	if recordValue == nil || filterValue == nil {
		return 0, false
	}

	if a, ok := recordNumber(recordValue); ok {
		if b, ok := filterNumber(filterValue); ok {
			return compareFloat(a, b), true
		}
	}

	if a, ok := recordValue.(time.Time); ok {
		if b, ok := filterTime(filterValue); ok {
			return a.Compare(b), true
		}
	}

	return strings.Compare(stringForm(recordValue), stringForm(filterValue)), true
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// recordNumber accepts Go numeric kinds and json.Number.
func recordNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// filterNumber additionally accepts numeric strings, since filter values are
// often typed into a text box.
func filterNumber(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return recordNumber(v)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func filterTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func stringForm(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

func contains(recordValue, filterValue any) bool {
	if filterValue == nil {
		return false
	}
	if list, ok := asList(recordValue); ok {
		for _, item := range list {
			if equal(item, filterValue) {
				return true
			}
		}
		return false
	}
	if recordValue == nil {
		return false
	}
	return strings.Contains(
		strings.ToLower(stringForm(recordValue)),
		strings.ToLower(stringForm(filterValue)),
	)
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
