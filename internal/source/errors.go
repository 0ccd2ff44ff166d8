package source

import "errors"

var (
	// ErrMissingInput means a load carried no request, data or diff, or the
	// data decoded to null.
	ErrMissingInput = errors.New("missing input")

	// ErrInvalidInput means the data could not be parsed or is not a
	// FeatureCollection.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotUpdateable means a diff arrived while the source holds no
	// updateable feature store.
	ErrNotUpdateable = errors.New("source is not updateable")

	// ErrNotClusterIndex means a cluster query reached a source whose index
	// is not a cluster index.
	ErrNotClusterIndex = errors.New("source is not clustered")
)
