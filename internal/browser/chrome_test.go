package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallExpression(t *testing.T) {
	t.Parallel()

	expr, err := callExpression(" (sel, n) => sel.length + n ", []any{`div[role="feed"]`, 3})
	require.NoError(t, err)
	assert.Equal(t,
		`(() => { const r = ((sel, n) => sel.length + n)("div[role=\"feed\"]", 3); return r === undefined ? null : r; })()`,
		expr)

	expr, err = callExpression("() => document.title", nil)
	require.NoError(t, err)
	assert.Contains(t, expr, "(() => document.title)()")

	_, err = callExpression("() => 1", []any{make(chan int)})
	assert.Error(t, err)
}

func TestElementHandle(t *testing.T) {
	t.Parallel()

	var nilEl *Element
	assert.Nil(t, nilEl.Handle())

	el := NewElement("button", 42)
	assert.Equal(t, "button", el.Selector)
	assert.Equal(t, 42, el.Handle())
}

func TestChromeDriver_ClickRejectsForeignElement(t *testing.T) {
	t.Parallel()

	d := &chromeDriver{}
	err := d.Click(context.Background(), NewElement("button", "not-a-node"))
	assert.Error(t, err)
}

func TestChromeDriver_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	d := &chromeDriver{
		cancelTab:   func() { calls++ },
		cancelAlloc: func() { calls++ },
	}
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 2, calls)
}
