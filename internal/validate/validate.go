// Package validate turns raw listing records into complete, normalized,
// de-duplicated records with a synthesized outreach line.
package validate

import (
	"strings"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/normalize"
)

// Validate runs the fixed pipeline: completeness filter, field
// normalization, ice-breaker synthesis, then de-duplication. The order
// matters: ice-breakers read normalized fields, and dedup runs last so keys
// that only collide after normalization are caught.
func Validate(raw []model.RawRecord) []model.ValidatedRecord {
	complete := FilterComplete(raw)

	out := make([]model.ValidatedRecord, 0, len(complete))
	for _, r := range complete {
		v := Normalize(r)
		// Whitespace-only fields pass the filter but normalize to empty.
		if v.Name == "" || v.Address == "" {
			continue
		}
		v.IceBreaker = IceBreaker(v)
		out = append(out, v)
	}

	return Dedup(out)
}

// FilterComplete drops records without a name or an address.
func FilterComplete(raw []model.RawRecord) []model.RawRecord {
	out := make([]model.RawRecord, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Address) == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Normalize cleans every field of r. Email has no source yet and stays
// empty, but still goes through the email rule.
func Normalize(r model.RawRecord) model.ValidatedRecord {
	return model.ValidatedRecord{
		Category: normalize.Text(r.Category),
		Name:     normalize.Text(r.Name),
		URL:      normalize.URL(r.URL),
		Address:  normalize.Text(r.Address),
		Phone:    normalize.Phone(r.Phone),
		Email:    normalize.Email(""),
		Website:  normalize.URL(r.Website),
		Rating:   normalize.Text(r.Rating),
		Reviews:  normalize.Text(r.Reviews),
	}
}

// Dedup keeps the first record for each lowercase(name)|lowercase(address).
func Dedup(records []model.ValidatedRecord) []model.ValidatedRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.ValidatedRecord, 0, len(records))
	for _, r := range records {
		key := r.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
