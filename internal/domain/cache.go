package domain

import "time"

// CacheGeneration is a named, versioned collection of cached HTTP responses.
// Exactly one generation is current at a time; the rest are evicted when a
// new version activates.
type CacheGeneration struct {
	Name      string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName returns the database table name for CacheGeneration.
func (CacheGeneration) TableName() string { return "cache_generations" }

// CachedResponse is one request-URL → response pair inside a generation.
// Header holds the JSON encoding of the response http.Header.
type CachedResponse struct {
	Generation string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	URL        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	Header     []byte    `gorm:"type:BLOB"`
	Body       []byte    `gorm:"type:BLOB"`
	StoredAt   time.Time `gorm:"type:DATETIME NOT NULL"`

	Gen CacheGeneration `gorm:"foreignKey:Generation;references:Name;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CachedResponse.
func (CachedResponse) TableName() string { return "cached_responses" }
