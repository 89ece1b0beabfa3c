package relational

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	mssql "github.com/microsoft/go-mssqldb"
)

// normalizePostgresValue turns pgx decoded values into plain JSON-friendly Go values.
func normalizePostgresValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	case netip.Prefix:
		return val.String()
	case []byte:
		return string(val)
	}
	return v
}

// normalizeSQLValue converts database/sql raw bytes by declared column type.
// Drivers hand back DECIMAL and GUID columns as bytes.
func normalizeSQLValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}

	switch strings.ToUpper(dbType) {
	case "UNIQUEIDENTIFIER":
		var id mssql.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return id.String()
		}
	case "DECIMAL", "NUMERIC", "NEWDECIMAL", "MONEY", "SMALLMONEY":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	}
	return string(b)
}
