package model

import (
	"errors"
	"fmt"
)

// ErrModelConfiguration indicates the model bundle is missing, malformed or
// inconsistent. It is fatal for the process.
var ErrModelConfiguration = errors.New("model configuration error")

// ErrSchemaMismatch indicates a feature vector's columns differ from the
// columns the scaler was fit on.
var ErrSchemaMismatch = fmt.Errorf("%w: feature schema mismatch", ErrModelConfiguration)

// ErrScalerNotFitted indicates the scaler has no fitted statistics.
var ErrScalerNotFitted = fmt.Errorf("%w: scaler not fitted", ErrModelConfiguration)

// ErrNaNFeature indicates a vector reached the scorer without imputation.
var ErrNaNFeature = errors.New("feature vector contains NaN")
