package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/leadgen/internal/model"
)

// Thresholds for the ice-breaker rule table.
const (
	praiseRating     = 4.5
	praiseMinReviews = 20
	weakRating       = 4.0
	fewReviews       = 10
)

var (
	ratingRe   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

// IceBreaker builds the outreach line for a normalized record: an opening
// chosen by rating and review count, a clause about the website, and a
// closing call to action naming the category.
func IceBreaker(v model.ValidatedRecord) string {
	rating, hasRating := ParseRating(v.Rating)
	reviews := ParseReviews(v.Reviews)

	var b strings.Builder
	switch {
	case hasRating && rating >= praiseRating && reviews > praiseMinReviews:
		fmt.Fprintf(&b, "I came across %s and was impressed by your %.1f-star rating across %d reviews. Customers clearly love what you do.", v.Name, rating, reviews)
	case hasRating && rating < weakRating:
		fmt.Fprintf(&b, "I came across %s and noticed a few simple ways to lift your %.1f-star rating with happier customers.", v.Name, rating)
	case reviews < fewReviews:
		fmt.Fprintf(&b, "I came across %s and think more people should be talking about you. Right now you have %s on Google.", v.Name, reviewPhrase(reviews))
	default:
		fmt.Fprintf(&b, "I came across %s while looking at %s businesses nearby.", v.Name, categoryNoun(v.Category))
	}

	if v.HasWebsite() {
		fmt.Fprintf(&b, " Your website (%s) is a good base, and I have a few ideas to help it turn more visitors into customers.", v.Website)
	} else {
		b.WriteString(" I couldn't find a website for you, and a simple one could bring in customers who search online first.")
	}

	fmt.Fprintf(&b, " Would you be open to a quick chat about growing your %s business?", categoryNoun(v.Category))
	return b.String()
}

// ParseRating reads a star rating such as "4.6", "4,6" or "4.6 stars".
func ParseRating(s string) (float64, bool) {
	m := ratingRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseReviews reads a review count such as "(1,234)" or "57 reviews".
// Unknown counts parse as zero.
func ParseReviews(s string) int {
	digits := nonDigitRe.ReplaceAllString(s, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

func reviewPhrase(n int) string {
	switch n {
	case 0:
		return "no reviews"
	case 1:
		return "just 1 review"
	default:
		return fmt.Sprintf("only %d reviews", n)
	}
}

func categoryNoun(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return "local"
	}
	return c
}
