// Package selector holds the CSS selector candidates used to read the listing
// interface. Each logical element has an ordered list of candidates; the first
// one that yields a value wins. Lists can be overridden from a YAML file when
// the remote markup drifts.
package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Probe reads one value from a node: the text of the first element matching
// Selector, or its Attr attribute when Attr is set. StripPrefix is removed
// from the result (e.g. "Address: " on aria labels).
type Probe struct {
	Selector    string `yaml:"selector"`
	Attr        string `yaml:"attr,omitempty"`
	StripPrefix string `yaml:"strip_prefix,omitempty"`
}

// Read applies the probe under root. An empty string means no value.
func (p Probe) Read(root *goquery.Selection) string {
	if root == nil || p.Selector == "" {
		return ""
	}
	node := root.Find(p.Selector).First()
	if node.Length() == 0 {
		return ""
	}

	var v string
	if p.Attr != "" {
		v = node.AttrOr(p.Attr, "")
	} else {
		v = node.Text()
	}
	v = strings.TrimSpace(v)
	if p.StripPrefix != "" {
		v = strings.TrimSpace(strings.TrimPrefix(v, p.StripPrefix))
	}
	return v
}

// Probes is an ordered candidate list for one field.
type Probes []Probe

// First returns the first non-empty value produced by the candidates.
func (ps Probes) First(root *goquery.Selection) string {
	for _, p := range ps {
		if v := p.Read(root); v != "" {
			return v
		}
	}
	return ""
}

// FirstMatch returns the elements matched by the first selector in sels that
// matches anything under root, along with that selector. It returns an empty
// selection and "" when nothing matches.
func FirstMatch(root *goquery.Selection, sels []string) (*goquery.Selection, string) {
	for _, s := range sels {
		if s == "" {
			continue
		}
		if found := root.Find(s); found.Length() > 0 {
			return found, s
		}
	}
	return root.Slice(0, 0), ""
}

// Card groups the probes for one result card in a list view.
type Card struct {
	Name    Probes `yaml:"name"`
	Link    Probes `yaml:"link"`
	Address Probes `yaml:"address"`
	Phone   Probes `yaml:"phone"`
	Website Probes `yaml:"website"`
	Rating  Probes `yaml:"rating"`
	Reviews Probes `yaml:"reviews"`
}

// Detail groups the probes for a listing's detail view.
type Detail struct {
	Ready   []string `yaml:"ready"`
	Address Probes   `yaml:"address"`
	Phone   Probes   `yaml:"phone"`
	Website Probes   `yaml:"website"`
	Rating  Probes   `yaml:"rating"`
	Reviews Probes   `yaml:"reviews"`
}

// Set is the full selector configuration used by the extraction engine.
type Set struct {
	// Consent buttons, tried in order; the first present one is clicked.
	Consent []string `yaml:"consent"`
	// Feed containers that scroll; the window scrolls when none match.
	Feed []string `yaml:"feed"`
	// Cards are result card roots across the list views.
	Cards  []string `yaml:"cards"`
	Card   Card     `yaml:"card"`
	Detail Detail   `yaml:"detail"`
}
