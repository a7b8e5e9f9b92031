// Package digragerr defines the error kinds shared across the digrag core,
// matching the taxonomy the build and query pipelines are designed around.
package digragerr

import "errors"

// Sentinel error kinds. Callers should use errors.Is against these, never
// string-match on Error().
var (
	// ErrParse marks a corrupt input record (bad JSON line, unparsable date,
	// malformed changelog entry). Non-fatal: the loader skips the record.
	ErrParse = errors.New("digrag: parse error")

	// ErrIO marks a failed read/write of corpus or index artifacts. Fatal at
	// build time; surfaces as ErrIndexUnavailable at query time.
	ErrIO = errors.New("digrag: io error")

	// ErrSchemaMismatch marks an on-disk metadata schema_version the reader
	// does not know how to load.
	ErrSchemaMismatch = errors.New("digrag: schema mismatch")

	// ErrIndexUnavailable surfaces an IO or schema failure to a query caller.
	ErrIndexUnavailable = errors.New("digrag: index unavailable")

	// ErrEmbeddingNetwork, ErrEmbeddingRateLimited, ErrEmbeddingServer and
	// ErrEmbeddingTimeout classify embedding-service failures (spec
	// EmbeddingFailure{Network|RateLimited|ServerError|Timeout|Parse}).
	ErrEmbeddingNetwork     = errors.New("digrag: embedding network error")
	ErrEmbeddingRateLimited = errors.New("digrag: embedding rate limited")
	ErrEmbeddingServer      = errors.New("digrag: embedding server error")
	ErrEmbeddingTimeout     = errors.New("digrag: embedding timeout")
	ErrEmbeddingParse       = errors.New("digrag: embedding response parse error")

	// ErrCapabilityMissing is returned by the Searcher when a semantic or
	// hybrid query is requested without a configured embedding hook.
	ErrCapabilityMissing = errors.New("digrag: capability missing")

	// ErrCancelled marks cooperative cancellation. Never logged as an error.
	ErrCancelled = errors.New("digrag: cancelled")

	// ErrDimensionMismatch is returned by the vector index when a vector's
	// dimension does not match the index's established dimension.
	ErrDimensionMismatch = errors.New("digrag: vector dimension mismatch")
)
