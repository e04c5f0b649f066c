// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity is in a state that forbids the requested transition.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates caller input failed validation.
var ErrValidation = errors.New("validation failed")
