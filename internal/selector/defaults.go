package selector

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Default returns the built-in selector set. It covers the place list view,
// the local-search list view and the place detail pane.
func Default() Set {
	return Set{
		Consent: []string{
			`button[aria-label="Accept all"]`,
			`button[aria-label="I agree"]`,
			`button[aria-label="Alles akzeptieren"]`,
			`form[action*="consent"] button`,
			`button.VfPpkd-LgbsSe-OWXEXe-k8QpJ`,
		},
		Feed: []string{
			`div[role="feed"]`,
			`div.m6QErb[aria-label]`,
			`div#search`,
		},
		Cards: []string{
			`div.Nv2PK`,
			`div[role="feed"] > div > div[jsaction]`,
			`div.VkpGBb`,
			`div[jscontroller="AtSb"]`,
		},
		Card: Card{
			Name: Probes{
				{Selector: `.qBF1Pd`},
				{Selector: `a.hfpxzc`, Attr: "aria-label"},
				{Selector: `.dbg0pd span`},
				{Selector: `div[role="heading"]`},
			},
			Link: Probes{
				{Selector: `a.hfpxzc`, Attr: "href"},
				{Selector: `a[href*="/maps/place/"]`, Attr: "href"},
				{Selector: `a[data-cid]`, Attr: "href"},
			},
			Address: Probes{
				{Selector: `.W4Efsd .W4Efsd span:last-child span:last-child`},
				{Selector: `.W4Efsd span:last-child`},
				{Selector: `.rllt__details div:nth-child(3)`},
			},
			Phone: Probes{
				{Selector: `.UsdlK`},
			},
			Website: Probes{
				{Selector: `a.lcr4fd`, Attr: "href"},
				{Selector: `a[data-value="Website"]`, Attr: "href"},
			},
			Rating: Probes{
				{Selector: `.MW4etd`},
				{Selector: `.yi40Hd`},
			},
			Reviews: Probes{
				{Selector: `.UY7F9`},
				{Selector: `.RDApEe`},
			},
		},
		Detail: Detail{
			Ready: []string{`h1.DUwDvf`, `div[role="main"] h1`},
			Address: Probes{
				{Selector: `button[data-item-id="address"] .Io6YTe`},
				{Selector: `button[data-item-id="address"]`, Attr: "aria-label", StripPrefix: "Address:"},
			},
			Phone: Probes{
				{Selector: `button[data-item-id^="phone:tel"] .Io6YTe`},
				{Selector: `a[href^="tel:"]`, Attr: "href"},
				{Selector: `button[aria-label^="Phone:"]`, Attr: "aria-label", StripPrefix: "Phone:"},
			},
			Website: Probes{
				{Selector: `a[data-item-id="authority"]`, Attr: "href"},
				{Selector: `a[data-item-id="website"]`, Attr: "href"},
				{Selector: `a[aria-label^="Website"]`, Attr: "href"},
			},
			Rating: Probes{
				{Selector: `div.F7nice span[aria-hidden="true"]`},
			},
			Reviews: Probes{
				{Selector: `div.F7nice span[aria-label*="review"]`},
			},
		},
	}
}

// Load reads selector overrides from a YAML file and lays them over the
// defaults. A list present in the file replaces the default list for that
// element; absent lists keep their defaults. An empty path returns the
// defaults.
func Load(path string) (Set, error) {
	def := Default()
	if path == "" {
		return def, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, eris.Wrapf(err, "selector: read %s", path)
	}

	var over Set
	if err := yaml.Unmarshal(data, &over); err != nil {
		return Set{}, eris.Wrap(err, "selector: parse overrides")
	}

	return merge(def, over), nil
}

func merge(base, over Set) Set {
	base.Consent = pickList(base.Consent, over.Consent)
	base.Feed = pickList(base.Feed, over.Feed)
	base.Cards = pickList(base.Cards, over.Cards)

	base.Card.Name = pickProbes(base.Card.Name, over.Card.Name)
	base.Card.Link = pickProbes(base.Card.Link, over.Card.Link)
	base.Card.Address = pickProbes(base.Card.Address, over.Card.Address)
	base.Card.Phone = pickProbes(base.Card.Phone, over.Card.Phone)
	base.Card.Website = pickProbes(base.Card.Website, over.Card.Website)
	base.Card.Rating = pickProbes(base.Card.Rating, over.Card.Rating)
	base.Card.Reviews = pickProbes(base.Card.Reviews, over.Card.Reviews)

	base.Detail.Ready = pickList(base.Detail.Ready, over.Detail.Ready)
	base.Detail.Address = pickProbes(base.Detail.Address, over.Detail.Address)
	base.Detail.Phone = pickProbes(base.Detail.Phone, over.Detail.Phone)
	base.Detail.Website = pickProbes(base.Detail.Website, over.Detail.Website)
	base.Detail.Rating = pickProbes(base.Detail.Rating, over.Detail.Rating)
	base.Detail.Reviews = pickProbes(base.Detail.Reviews, over.Detail.Reviews)
	return base
}

func pickList(base, over []string) []string {
	if len(over) > 0 {
		return over
	}
	return base
}

func pickProbes(base, over Probes) Probes {
	if len(over) > 0 {
		return over
	}
	return base
}
