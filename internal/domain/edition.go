package domain

import (
	"fmt"
	"time"
)

// Edition is one dated, numbered Mitteilungsblatt release (Stück).
type Edition struct {
	ID            int64
	Year          int
	Stueck        int
	Title         string
	URL           string
	PublishedDate *time.Time
	ScrapedAt     *time.Time
	AnalyzedAt    *time.Time
}

// Key returns the natural identifier, e.g. "2025-15".
func (e Edition) Key() string {
	return fmt.Sprintf("%d-%d", e.Year, e.Stueck)
}

// Processed reports whether the edition is both scraped and analyzed.
func (e Edition) Processed() bool {
	return e.ScrapedAt != nil && e.AnalyzedAt != nil
}

// NewerThan compares editions in (year, stueck) order.
func (e Edition) NewerThan(other Edition) bool {
	if e.Year != other.Year {
		return e.Year > other.Year
	}
	return e.Stueck > other.Stueck
}

// ParseEditionKey splits a "year-stueck" key.
func ParseEditionKey(key string) (year, stueck int, err error) {
	if _, err = fmt.Sscanf(key, "%d-%d", &year, &stueck); err != nil {
		return 0, 0, fmt.Errorf("malformed edition key %q", key)
	}
	return year, stueck, nil
}

// RawEdition is one archive row before persistence.
type RawEdition struct {
	Year          int
	Stueck        int
	Title         string
	URL           string
	PublishedDate *time.Time
	Special       bool
}

// Key returns the same natural identifier as the persisted Edition.
func (r RawEdition) Key() string {
	return fmt.Sprintf("%d-%d", r.Year, r.Stueck)
}

// Stats summarizes processing state across the whole store.
type Stats struct {
	TotalEditions    int `json:"total_editions"`
	ScrapedEditions  int `json:"scraped_editions"`
	AnalyzedEditions int `json:"analyzed_editions"`
	TotalItems       int `json:"total_items"`
	AnalyzedItems    int `json:"analyzed_items"`
	RelevantItems    int `json:"relevant_items"`
}
