package config

import "errors"

// ErrInvalid indicates a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid configuration")

// ErrUnknownKey indicates a get/set key that names no setting.
var ErrUnknownKey = errors.New("unknown config key")
