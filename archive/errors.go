// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package archive

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a named entry does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrAlreadyExists is returned by Insert when the name is taken.
	ErrAlreadyExists = errors.New("entry already exists")

	// ErrReadOnly is returned when a mutation reaches a store opened
	// without write capability.
	ErrReadOnly = errors.New("archive is read-only")

	// ErrCompressionFailed wraps codec failures during insertion.
	ErrCompressionFailed = errors.New("compression failed")

	// ErrConcurrentMutation is returned by an iterator whose archive was
	// mutated after the iterator was created.
	ErrConcurrentMutation = errors.New("archive mutated during iteration")
)

// errTableFull fires only if the load factor bound is violated; it is a
// programming error, not an archive condition.
var errTableFull = errors.New("internal: slot table full")
