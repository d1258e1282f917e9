package squeeze

import "github.com/zeebo/errs"

var (
	// Error is the error class for replay failures not covered below.
	Error = errs.Class("squeeze")
	// DecodeError is the error class for malformed or incomplete log data.
	DecodeError = errs.Class("decode")
	// ConsistencyError is the error class for changes the target cannot
	// take: rows that cannot be located and broken change sequences.
	ConsistencyError = errs.Class("consistency")
	// SchemaDriftError is the error class for source schema changes.
	SchemaDriftError = errs.Class("schema drift")
	// ResourceError is the error class for spill store failures.
	ResourceError = errs.Class("resource")
)
