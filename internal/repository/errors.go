// Package repository holds the MySQL data access layer.  Handlers translate
// the sentinel errors defined here into HTTP status codes.
package repository

import "errors"

// ErrNotFound is returned when a vehicle or engine row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEngineNotFound is returned when a vehicle references a missing engine.
var ErrEngineNotFound = errors.New("engine not found")

// mysqlNoReferencedRow is ER_NO_REFERENCED_ROW_2, a failed foreign key on insert/update.
const mysqlNoReferencedRow = 1452
