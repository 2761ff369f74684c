package features

import (
	"errors"
	"fmt"
)

// ErrFeatureExtraction indicates a feature service could not produce a
// vector for one segment. It is recoverable: the caller NaN-fills.
var ErrFeatureExtraction = errors.New("feature extraction failed")

// ErrSchemaDrift indicates a feature service answered with columns the model
// was not trained on, or with none of the columns it was. It wraps
// ErrFeatureExtraction but is not recoverable: every segment would be
// affected the same way.
var ErrSchemaDrift = fmt.Errorf("%w: response does not match the model schema", ErrFeatureExtraction)
