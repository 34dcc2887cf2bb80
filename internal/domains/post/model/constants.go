package model

const (
	// Seeding
	MaxSeedCount = 10000
	MaxSeedScore = 100

	// Queries
	DefaultTopLimit = 10
	MaxTopLimit     = 1000

	// Sort keys accepted by the view
	SortByCreatedAt = "created_at"
	SortByScore     = "score"
)
