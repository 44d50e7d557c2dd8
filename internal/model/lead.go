package model

import (
	"fmt"
	"strings"
)

// Bounds for ExtractionQuery.MaxRecords.
const (
	MinRecords = 1
	MaxRecords = 100
)

// ExtractionQuery describes one search against the listing interface.
type ExtractionQuery struct {
	Category   string `json:"category"`
	Region     string `json:"region"`
	Country    string `json:"country"`
	MaxRecords int    `json:"max_records"`
}

// Clamp returns a copy with MaxRecords forced into [MinRecords, MaxRecords]
// and the text fields trimmed.
func (q ExtractionQuery) Clamp() ExtractionQuery {
	q.Category = strings.TrimSpace(q.Category)
	q.Region = strings.TrimSpace(q.Region)
	q.Country = strings.TrimSpace(q.Country)
	switch {
	case q.MaxRecords < MinRecords:
		q.MaxRecords = MinRecords
	case q.MaxRecords > MaxRecords:
		q.MaxRecords = MaxRecords
	}
	return q
}

// SearchText composes the free-text query typed into the search box.
func (q ExtractionQuery) SearchText() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{q.Region, q.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(q.Category)
	}
	return fmt.Sprintf("%s in %s", strings.TrimSpace(q.Category), strings.Join(parts, ", "))
}

// RawRecord is a business listing as read from the page, before validation.
type RawRecord struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Website  string `json:"website"`
	Rating   string `json:"rating,omitempty"`
	Reviews  string `json:"reviews,omitempty"`
}

// Key identifies a record during collection: the detail URL when known,
// otherwise name and address.
func (r RawRecord) Key() string {
	if u := strings.TrimSpace(r.URL); u != "" {
		return u
	}
	name := strings.ToLower(strings.TrimSpace(r.Name))
	if name == "" {
		return ""
	}
	return name + "|" + strings.ToLower(strings.TrimSpace(r.Address))
}

// Merge lays detail-page fields over the list-view record. Detail values
// only fill fields the list left blank; known list data is never replaced.
func (r RawRecord) Merge(detail RawRecord) RawRecord {
	return r.FillBlanks(detail)
}

// FillBlanks copies fields from other only where r has nothing yet. Used when
// the same candidate reappears in the list view and when detail data arrives.
func (r RawRecord) FillBlanks(other RawRecord) RawRecord {
	fill := func(cur, next string) string {
		if strings.TrimSpace(cur) == "" {
			return next
		}
		return cur
	}
	r.Category = fill(r.Category, other.Category)
	r.URL = fill(r.URL, other.URL)
	r.Address = fill(r.Address, other.Address)
	r.Phone = fill(r.Phone, other.Phone)
	r.Website = fill(r.Website, other.Website)
	r.Rating = fill(r.Rating, other.Rating)
	r.Reviews = fill(r.Reviews, other.Reviews)
	return r
}

// ValidatedRecord is a normalized, complete record ready for the report.
type ValidatedRecord struct {
	Category   string `json:"category"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Website    string `json:"website"`
	Rating     string `json:"rating,omitempty"`
	Reviews    string `json:"reviews,omitempty"`
	IceBreaker string `json:"ice_breaker"`
}

// DedupKey is lowercase(name)|lowercase(address).
func (v ValidatedRecord) DedupKey() string {
	return strings.ToLower(v.Name) + "|" + strings.ToLower(v.Address)
}

// HasWebsite reports whether a website is known for the record.
func (v ValidatedRecord) HasWebsite() bool {
	return strings.TrimSpace(v.Website) != ""
}
