package db

import "errors"

var (
	errFailedToOpen  = errors.New("failed to open database")
	errFailedToPing  = errors.New("failed to ping database")
	errFailedToQuery = errors.New("failed to query")
	errFailedToScan  = errors.New("failed to scan")
)
