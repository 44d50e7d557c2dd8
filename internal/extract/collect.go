package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/browser"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/selector"
)

const outerHTMLScript = `() => document.documentElement ? document.documentElement.outerHTML : ""`

// scrollScript scrolls the first scrollable container among sels, or the
// window when none is scrollable. It returns what it scrolled.
const scrollScript = `(sels) => {
  for (const sel of sels) {
    const el = document.querySelector(sel);
    if (el && el.scrollHeight > el.clientHeight) {
      el.scrollBy(0, el.clientHeight || 800);
      return sel;
    }
  }
  window.scrollBy(0, window.innerHeight || 800);
  return "window";
}`

// collect runs the strategies in order until one yields candidates. When at
// least one strategy completed without error the result is NoResultsError;
// only when every strategy failed is the last navigation error returned.
func (e *Engine) collect(ctx context.Context, drv browser.Driver, q model.ExtractionQuery, text string, events chan<- model.ProgressEvent, log *zap.Logger) ([]model.RawRecord, error) {
	strategies := e.strategies()
	tried := make([]string, 0, len(strategies))

	var (
		lastErr   error
		completed bool
	)
	for i, s := range strategies {
		if i == 0 {
			emit(ctx, events, model.ProgressEvent{
				Status:  model.ProgressSearching,
				Message: fmt.Sprintf("Searching for %s", text),
			})
		} else {
			emit(ctx, events, model.ProgressEvent{
				Status:  model.ProgressFallback,
				Message: fmt.Sprintf("No results in the %s view, trying the %s view", strategies[i-1].name, s.name),
			})
		}
		tried = append(tried, s.name)

		stratLog := log.With(zap.String("strategy", s.name))
		records, err := e.runStrategy(ctx, drv, s, q, text, events, stratLog)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			stratLog.Warn("extract: strategy failed", zap.Error(err))
			lastErr = err
			continue
		}
		completed = true
		if len(records) > 0 {
			stratLog.Info("extract: strategy found candidates", zap.Int("candidates", len(records)))
			return records, nil
		}
		stratLog.Info("extract: strategy found nothing")
	}

	if !completed && lastErr != nil {
		return nil, eris.Wrap(lastErr, "extract: collect")
	}
	return nil, &NoResultsError{Query: text, Strategies: tried}
}

// runStrategy navigates to the strategy's list view and scrolls it until the
// cap is reached, the list stops growing, or the iteration bound is hit.
func (e *Engine) runStrategy(ctx context.Context, drv browser.Driver, s strategy, q model.ExtractionQuery, text string, events chan<- model.ProgressEvent, log *zap.Logger) ([]model.RawRecord, error) {
	pageURL := s.url(text)
	if err := drv.Navigate(ctx, pageURL, browser.WaitCondition{}, e.cfg.NavTimeout); err != nil {
		return nil, err
	}
	if err := e.dismissConsent(ctx, drv, log); err != nil {
		return nil, err
	}

	set := newCandidateSet(q.MaxRecords)
	stagnant := 0
	for iter := 1; iter <= s.iterations; iter++ {
		html, err := e.pageHTML(ctx, drv)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("extract: read list view", zap.Int("iteration", iter), zap.Error(err))
			break
		}

		added := set.add(e.parseCards(html, pageURL, q.Category))
		emit(ctx, events, model.ProgressEvent{
			Status:  model.ProgressCollecting,
			Message: fmt.Sprintf("Found %d listings", set.size()),
			Count:   model.IntPtr(set.size()),
			Total:   model.IntPtr(q.MaxRecords),
		})
		log.Debug("extract: collect iteration",
			zap.Int("iteration", iter),
			zap.Int("added", added),
			zap.Int("candidates", set.size()),
		)

		if set.full() {
			break
		}
		if added == 0 {
			stagnant++
			if stagnant >= s.stagnation {
				break
			}
		} else {
			stagnant = 0
		}
		if iter == s.iterations {
			break
		}

		if _, err := drv.Evaluate(ctx, scrollScript, e.sel.Feed); err != nil {
			log.Debug("extract: scroll", zap.Error(err))
		}
		if err := sleep(ctx, e.cfg.SettleDelay); err != nil {
			return nil, err
		}
	}

	return set.records(), nil
}

// dismissConsent clicks the first consent button present. A missing button
// is normal; a failing click is only logged.
func (e *Engine) dismissConsent(ctx context.Context, drv browser.Driver, log *zap.Logger) error {
	for _, sel := range e.sel.Consent {
		el, err := drv.Query(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if el == nil {
			continue
		}
		if err := drv.Click(ctx, el); err != nil {
			log.Debug("extract: consent click", zap.String("selector", sel), zap.Error(err))
			return nil
		}
		log.Debug("extract: consent dismissed", zap.String("selector", sel))
		return sleep(ctx, e.cfg.SettleDelay)
	}
	return nil
}

// pageHTML returns the current rendered document.
func (e *Engine) pageHTML(ctx context.Context, drv browser.Driver) (string, error) {
	raw, err := drv.Evaluate(ctx, outerHTMLScript)
	if err != nil {
		return "", err
	}
	var html string
	if err := json.Unmarshal(raw, &html); err != nil {
		return "", eris.Wrap(err, "extract: decode page html")
	}
	return html, nil
}

// parseCards reads every result card in html. Cards without a name are
// dropped.
func (e *Engine) parseCards(html, pageURL, category string) []model.RawRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	cards, _ := selector.FirstMatch(doc.Selection, e.sel.Cards)
	out := make([]model.RawRecord, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		c := e.sel.Card
		rec := model.RawRecord{
			Category: category,
			Name:     c.Name.First(card),
			URL:      resolveLink(pageURL, c.Link.First(card)),
			Address:  c.Address.First(card),
			Phone:    c.Phone.First(card),
			Website:  c.Website.First(card),
			Rating:   c.Rating.First(card),
			Reviews:  c.Reviews.First(card),
		}
		if rec.Name == "" {
			return
		}
		out = append(out, rec)
	})
	return out
}

// candidateSet keeps unique candidates in discovery order.
type candidateSet struct {
	limit int
	index map[string]int
	list  []model.RawRecord
}

func newCandidateSet(limit int) *candidateSet {
	return &candidateSet{limit: limit, index: make(map[string]int)}
}

// add merges recs into the set and returns how many were new. A repeat keeps
// the first-seen record and only fills its blanks.
func (s *candidateSet) add(recs []model.RawRecord) int {
	added := 0
	for _, r := range recs {
		key := r.Key()
		if key == "" {
			continue
		}
		if i, ok := s.index[key]; ok {
			s.list[i] = s.list[i].FillBlanks(r)
			continue
		}
		if s.full() {
			continue
		}
		s.index[key] = len(s.list)
		s.list = append(s.list, r)
		added++
	}
	return added
}

func (s *candidateSet) size() int { return len(s.list) }

func (s *candidateSet) full() bool { return len(s.list) >= s.limit }

func (s *candidateSet) records() []model.RawRecord {
	out := make([]model.RawRecord, len(s.list))
	copy(out, s.list)
	return out
}
