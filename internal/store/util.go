package store

import "github.com/jmoiron/sqlx"

// sqlxIn expands a query's trailing "IN (?)" placeholder for a slice
// argument. sqlx.In emits "?" placeholders, which sqlite accepts as they
// are, so no rebind step follows. A small
// wrapper around sqlx.In kept local to this package so call sites read
// like plain database/sql.
func sqlxIn(query string, args ...any) (string, []any, error) {
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q, expanded, nil
}
