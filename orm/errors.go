package orm

import "errors"

// ErrNotFound is returned when a query expects exactly one row but finds none.
var ErrNotFound = errors.New("orm: not found")

// ErrMissingWhere is returned by bulk Delete / UpdateColumns without a WHERE clause.
var ErrMissingWhere = errors.New("orm: statement without WHERE clause is not allowed")
