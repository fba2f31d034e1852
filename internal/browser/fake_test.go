package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchPage() *FakeElement {
	return El("body").Add(
		El("form", "id", "searchform").Add(
			El("input", "id", "q", "name", "q", "type", "text", "aria-label", "Search"),
			El("button", "id", "searchButton", "type", "submit").WithText("Search"),
		),
		El("div", "class", "results hidden"),
	)
}

func TestFakeQuerySelectors(t *testing.T) {
	d := NewFakeDriver("https://example.com", searchPage())
	ctx := context.Background()

	tests := []struct {
		selector string
		want     int
	}{
		{`#q`, 1},
		{`input[name="q"]`, 1},
		{`[aria-label="Search"]`, 1},
		{`button[type="submit"]`, 1},
		{`input, button`, 2},
		{`.results`, 1},
		{`input:not([type="checkbox"])`, 1},
		{`[data-testid="missing"]`, 0},
		{`[aria-label^="Sea"]`, 1},
	}
	for _, tc := range tests {
		els, err := d.Query(ctx, tc.selector)
		require.NoError(t, err, tc.selector)
		assert.Len(t, els, tc.want, tc.selector)
	}
}

func TestFakeAncestorAndScopedQuery(t *testing.T) {
	d := NewFakeDriver("https://example.com", searchPage())
	ctx := context.Background()

	els, err := d.Query(ctx, `#q`)
	require.NoError(t, err)
	require.Len(t, els, 1)

	form, ok := d.Ancestor(ctx, els[0], "form")
	require.True(t, ok)
	assert.Equal(t, "form", form.Tag())

	inner, err := d.QueryIn(ctx, form, `button[type="submit"]`)
	require.NoError(t, err)
	assert.Len(t, inner, 1)
}

func TestFakeInteractionsAndVisibility(t *testing.T) {
	dialogOpen := false
	btn := El("button", "id", "open").WithText("New Case")
	btn.OnClick = func() { dialogOpen = true }
	hidden := El("div", "id", "tip")
	hidden.Hidden = true
	root := El("body").Add(btn, hidden, El("input", "id", "name", "type", "text"))
	d := NewFakeDriver("https://app.example.com", root)
	ctx := context.Background()

	els, _ := d.Query(ctx, "#open")
	require.Len(t, els, 1)
	require.NoError(t, els[0].Click())
	assert.True(t, dialogOpen)

	tip, _ := d.Query(ctx, "#tip")
	vis, err := tip[0].Visible()
	require.NoError(t, err)
	assert.False(t, vis)

	in, _ := d.Query(ctx, "#name")
	require.NoError(t, in[0].Input("Ada"))
	v, _ := in[0].Value()
	assert.Equal(t, "Ada", v)
}

func TestFakeMovingBoxDrifts(t *testing.T) {
	el := El("button", "id", "b")
	el.Moving = true
	b1, _ := el.Box()
	b2, _ := el.Box()
	assert.NotEqual(t, b1.X, b2.X)
}

func TestFakeContainsText(t *testing.T) {
	d := NewFakeDriver("https://example.com", El("body").Add(
		El("h1").WithText("Order Confirmed"),
	))
	ok, err := d.ContainsText(context.Background(), "order confirmed")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = d.ContainsText(context.Background(), "missing words")
	assert.False(t, ok)
}

func TestKeyFromName(t *testing.T) {
	for _, name := range []string{"Enter", "Escape", "Tab", "ArrowDown"} {
		_, err := keyFromName(name)
		assert.NoError(t, err, name)
	}
	_, err := keyFromName("F13")
	assert.Error(t, err)
}
