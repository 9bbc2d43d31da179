package dataaccess

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/jmoiron/sqlx"
)

type scanPlan int

const (
	scanColumn scanPlan = iota
	scanStruct
	scanStructPtr
	scanMap
	scanSlice
)

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
	mapType     = reflect.TypeFor[map[string]any]()
	sliceType   = reflect.TypeFor[[]any]()
)

// planFor decides how rows become T:
//   - structs and pointers to structs are filled by column name (db tags,
//     then lower-cased field names); every column needs a destination
//   - map[string]any and []any take every column
//   - anything else, including sql.Scanner implementations and time.Time,
//     is scanned from a single-column row
func planFor[T any]() scanPlan {
	t := reflect.TypeFor[T]()
	switch {
	case t == mapType:
		return scanMap
	case t == sliceType:
		return scanSlice
	case scannable(t):
		return scanColumn
	case t.Kind() == reflect.Struct:
		return scanStruct
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct && !scannable(t.Elem()):
		return scanStructPtr
	default:
		return scanColumn
	}
}

func scannable(t reflect.Type) bool {
	return t == timeType || t.Implements(scannerType) || reflect.PointerTo(t).Implements(scannerType)
}

// scanRow maps the current row of rows to T.
func scanRow[T any](rows *sqlx.Rows, plan scanPlan) (T, error) {
	var v T
	switch plan {
	case scanStruct:
		err := rows.StructScan(&v)
		return v, err
	case scanStructPtr:
		elem := reflect.New(reflect.TypeFor[T]().Elem())
		if err := rows.StructScan(elem.Interface()); err != nil {
			return v, err
		}
		return elem.Interface().(T), nil
	case scanMap:
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return v, err
		}
		return any(m).(T), nil
	case scanSlice:
		s, err := rows.SliceScan()
		if err != nil {
			return v, err
		}
		return any(s).(T), nil
	default:
		cols, err := rows.Columns()
		if err != nil {
			return v, err
		}
		if len(cols) != 1 {
			return v, fmt.Errorf("cannot scan %d columns into %T", len(cols), v)
		}
		err = rows.Scan(&v)
		return v, err
	}
}
