package pheap

import "errors"

// ErrNoSpace is returned when a Bump allocator's region is exhausted.
var ErrNoSpace = errors.New("pheap: arena exhausted")
