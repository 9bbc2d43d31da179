package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
)

// Mapper resolves struct fields by `db` tag, falling back to the lower-cased
// field name. Row mapping in the dataaccess package uses the same rules, so
// a struct reads back what it binds.
var Mapper = reflectx.NewMapperFunc("db", strings.ToLower)

var (
	valuerType = reflect.TypeFor[driver.Valuer]()
	timeType   = reflect.TypeFor[time.Time]()
)

// namedArgs converts a parameter object into sql.Named arguments for drivers
// that resolve named placeholders themselves.
//
// Accepted shapes: nil, []any (positional, passed through), a single
// sql.NamedArg, a map keyed by string, or a struct (or pointer to one).
func namedArgs(params any) ([]any, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case []any:
		return p, nil
	case sql.NamedArg:
		return []any{p}, nil
	case map[string]any:
		return namedFromMap(p), nil
	}

	v := reflect.ValueOf(params)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}

	switch {
	case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
		m := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return namedFromMap(m), nil
	case v.Kind() == reflect.Struct:
		return namedFromStruct(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedParams, params)
	}
}

func namedFromMap(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, sql.Named(k, m[k]))
	}
	return args
}

func namedFromStruct(v reflect.Value) []any {
	// FieldMap allocates nil embedded pointers, which needs an addressable copy.
	addr := reflect.New(v.Type()).Elem()
	addr.Set(v)
	fields := Mapper.FieldMap(addr)
	names := make([]string, 0, len(fields))
	for name, fv := range fields {
		// Nested paths and plain structs cannot be placeholder values.
		if strings.Contains(name, ".") || !fv.CanInterface() || !bindable(fv) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		args = append(args, sql.Named(name, fields[name].Interface()))
	}
	return args
}

func bindable(v reflect.Value) bool {
	t := v.Type()
	if t.Implements(valuerType) || reflect.PointerTo(t).Implements(valuerType) || t == timeType {
		return true
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() != reflect.Struct || t == timeType
}

// rebindNamed rewrites :name placeholders to the driver's positional
// bindvar style and orders the arguments to match. Positional parameters
// are passed through untouched. It accepts the same shapes as namedArgs.
func rebindNamed(bindType int, query string, params any) (string, []any, error) {
	switch p := params.(type) {
	case nil:
		return query, nil, nil
	case []any:
		return query, p, nil
	case sql.NamedArg:
		params = map[string]any{p.Name: p.Value}
	}

	q, args, err := sqlx.BindNamed(bindType, query, params)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnsupportedParams, err)
	}
	return q, args, nil
}
