package cachestore

import "time"

// TTL defaults added to time.Now() when storing to calculate expires_at.
const (
	// TTLCovariance covers one trading day; a new close changes every window.
	TTLCovariance = 24 * time.Hour
)
