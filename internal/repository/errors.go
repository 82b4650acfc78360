package repository

import "errors"

var (
	ErrNotFound      = errors.New("document not found")
	ErrNoCapacity    = errors.New("no remaining capacity")
	ErrStateConflict = errors.New("state changed concurrently")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrAtCapacity    = errors.New("remaining already equals capacity")
)
