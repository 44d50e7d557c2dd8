package extract

import (
	"fmt"
	"strings"
)

// NoResultsPrefix starts every NoResultsError message. Archived jobs only
// keep the message, so it is how they are recognised later.
const NoResultsPrefix = "no businesses found"

// NoResultsError means every strategy ran and none found a candidate.
type NoResultsError struct {
	Query      string
	Strategies []string
}

func (e *NoResultsError) Error() string {
	return fmt.Sprintf("%s for %q (tried %s views); try a broader category or a larger region",
		NoResultsPrefix, e.Query, strings.Join(e.Strategies, ", "))
}

// DriverLaunchError means the browser could not be started.
type DriverLaunchError struct {
	Err error
}

func (e *DriverLaunchError) Error() string {
	return "extract: launch browser: " + e.Err.Error()
}

func (e *DriverLaunchError) Unwrap() error { return e.Err }

// EnrichmentError is a failed detail read for one candidate. It is logged and
// never returned from Extract.
type EnrichmentError struct {
	Name string
	URL  string
	Err  error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("extract: enrich %q: %v", e.Name, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }
