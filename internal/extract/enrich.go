package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/browser"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
)

// enrich visits each candidate's detail page in order and merges what it
// finds. Per-candidate failures are logged and the list-view data kept; only
// context cancellation is returned.
func (e *Engine) enrich(ctx context.Context, drv browser.Driver, records []model.RawRecord, events chan<- model.ProgressEvent, log *zap.Logger) error {
	breaker := e.newBreaker(log)
	policy := resilience.DefaultPolicy()
	policy.Attempts = e.cfg.DetailRetries

	total := len(records)
	failed := 0
	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := records[i]
		emit(ctx, events, model.ProgressEvent{
			Status:  model.ProgressEnriching,
			Message: fmt.Sprintf("Enriching %d of %d: %s", i+1, total, rec.Name),
			Current: model.IntPtr(i + 1),
			Total:   model.IntPtr(total),
		})

		if rec.URL == "" {
			continue
		}

		candLog := log.With(zap.String("candidate", rec.Name))
		p := policy
		p.OnRetry = resilience.LogRetry("detail navigation", zap.String("candidate", rec.Name))

		detail, err := e.readDetail(ctx, drv, breaker, p, rec.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			candLog.Warn("extract: enrichment failed, keeping list data",
				zap.Error(&EnrichmentError{Name: rec.Name, URL: rec.URL, Err: err}),
			)
			continue
		}
		records[i] = rec.Merge(detail)
	}

	if failed > 0 {
		log.Info("extract: enrichment finished with failures",
			zap.Int("failed", failed),
			zap.Int("total", total),
		)
	}
	return nil
}

// readDetail loads a detail page through the limiter, retry policy and
// breaker, then reads its structured fields.
func (e *Engine) readDetail(ctx context.Context, drv browser.Driver, breaker *resilience.Breaker, p resilience.Policy, detailURL string) (model.RawRecord, error) {
	wait := browser.WaitCondition{Selector: strings.Join(e.sel.Detail.Ready, ", ")}

	var html string
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, p, func(ctx context.Context) error {
			if err := e.limiter.Wait(ctx); err != nil {
				return resilience.Permanent(err)
			}
			if err := drv.Navigate(ctx, detailURL, wait, e.cfg.NavTimeout); err != nil {
				return err
			}
			h, err := e.pageHTML(ctx, drv)
			if err != nil {
				return err
			}
			html = h
			return nil
		})
	})
	if err != nil {
		return model.RawRecord{}, err
	}
	return e.parseDetail(html), nil
}

// parseDetail reads the detail pane fields. Missing fields stay empty.
func (e *Engine) parseDetail(html string) model.RawRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.RawRecord{}
	}
	d := e.sel.Detail
	root := doc.Selection
	return model.RawRecord{
		Address: d.Address.First(root),
		Phone:   d.Phone.First(root),
		Website: d.Website.First(root),
		Rating:  d.Rating.First(root),
		Reviews: d.Reviews.First(root),
	}
}
