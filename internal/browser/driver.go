// Package browser defines the headless-browser capability the extraction
// engine drives, and a chromedp-backed implementation of it.
package browser

import (
	"context"
	"encoding/json"
	"time"
)

// WaitCondition describes what Navigate waits for after the page loads.
// An empty Selector waits for the document only.
type WaitCondition struct {
	Selector string
}

// Element is an opaque handle to a DOM node returned by Query.
type Element struct {
	Selector string
	handle   any
}

// NewElement wraps a driver-specific node handle.
func NewElement(selector string, handle any) *Element {
	return &Element{Selector: selector, handle: handle}
}

// Handle returns the driver-specific node handle.
func (e *Element) Handle() any {
	if e == nil {
		return nil
	}
	return e.handle
}

// Driver is one browser session. A Driver is not safe for concurrent use;
// each job owns its own.
type Driver interface {
	// Navigate loads url and waits for wait, failing after timeout.
	Navigate(ctx context.Context, url string, wait WaitCondition, timeout time.Duration) error
	// Evaluate runs fn (a JavaScript function expression) with the JSON
	// encoded args and returns its JSON encoded result.
	Evaluate(ctx context.Context, fn string, args ...any) (json.RawMessage, error)
	// Query returns the first element matching selector, or nil.
	Query(ctx context.Context, selector string) (*Element, error)
	Click(ctx context.Context, el *Element) error
	SetViewport(ctx context.Context, width, height int) error
	Close() error
}

// Factory launches a new Driver.
type Factory func(ctx context.Context) (Driver, error)
