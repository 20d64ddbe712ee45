package store

import (
	"database/sql/driver"
	"strings"

	"modernc.org/sqlite"
)

// sqliteLower is a Unicode-aware lower(). SQLite's built-in LOWER only folds
// ASCII letters.
const sqliteLower = "ulower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(sqliteLower, 1, foldLower)
}

func foldLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}
