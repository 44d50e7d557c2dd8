package browser

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Options configures Chrome sessions.
type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	// ActionTimeout bounds Evaluate, Query, Click and SetViewport calls.
	ActionTimeout time.Duration
}

// NewChromeFactory returns a Factory that launches a fresh Chrome process per
// driver.
func NewChromeFactory(opts Options) Factory {
	return func(ctx context.Context) (Driver, error) {
		return launchChrome(ctx, opts)
	}
}

type chromeDriver struct {
	ctx           context.Context
	cancelTab     context.CancelFunc
	cancelAlloc   context.CancelFunc
	actionTimeout time.Duration
	closeOnce     sync.Once
}

func launchChrome(ctx context.Context, o Options) (*chromeDriver, error) {
	ua := o.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)
	if o.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(o.ExecPath))
	}

	// The browser outlives individual calls; only the caller's cancellation
	// tears it down.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(zap.S().Named("chromedp").Debugf),
	)

	// An empty Run starts the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	timeout := o.ActionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &chromeDriver{
		ctx:           tabCtx,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		actionTimeout: timeout,
	}, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (d *chromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (d *chromeDriver) Navigate(ctx context.Context, url string, wait WaitCondition, timeout time.Duration) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if wait.Selector != "" {
		actions = append(actions, chromedp.WaitReady(wait.Selector, chromedp.ByQuery))
	}
	if err := d.run(ctx, timeout, actions...); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	return nil
}

func (d *chromeDriver) Evaluate(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	expr, err := callExpression(fn, args)
	if err != nil {
		return nil, err
	}

	var res []byte
	if err := d.run(ctx, d.actionTimeout, chromedp.Evaluate(expr, &res)); err != nil {
		return nil, eris.Wrap(err, "browser: evaluate")
	}
	if len(res) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(res), nil
}

func (d *chromeDriver) Query(ctx context.Context, selector string) (*Element, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, d.actionTimeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
	); err != nil {
		return nil, eris.Wrapf(err, "browser: query %s", selector)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return NewElement(selector, nodes[0]), nil
}

func (d *chromeDriver) Click(ctx context.Context, el *Element) error {
	node, ok := el.Handle().(*cdp.Node)
	if !ok || node == nil {
		return eris.New("browser: click on foreign element")
	}
	if err := d.run(ctx, d.actionTimeout, chromedp.MouseClickNode(node)); err != nil {
		return eris.Wrapf(err, "browser: click %s", el.Selector)
	}
	return nil
}

func (d *chromeDriver) SetViewport(ctx context.Context, width, height int) error {
	if err := d.run(ctx, d.actionTimeout, chromedp.EmulateViewport(int64(width), int64(height))); err != nil {
		return eris.Wrap(err, "browser: set viewport")
	}
	return nil
}

func (d *chromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.cancelTab()
		d.cancelAlloc()
	})
	return nil
}

// callExpression builds "(fn)(arg1, arg2, ...)" with JSON encoded arguments.
// An undefined result is mapped to null so it always decodes.
func callExpression(fn string, args []any) (string, error) {
	encoded := make([]string, 0, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", eris.Wrapf(err, "browser: encode argument %d", i)
		}
		encoded = append(encoded, string(b))
	}
	return "(() => { const r = (" + strings.TrimSpace(fn) + ")(" + strings.Join(encoded, ", ") + "); return r === undefined ? null : r; })()", nil
}
