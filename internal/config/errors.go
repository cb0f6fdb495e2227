package config

import "errors"

var (
	// ErrMalformed is returned when the configuration file does not
	// follow the expected line format.
	ErrMalformed = errors.New("malformed configuration")

	// ErrInsecurePermissions is returned when the configuration file is
	// readable by users other than its owner.
	ErrInsecurePermissions = errors.New("insecure configuration file permissions")
)
