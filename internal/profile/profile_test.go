package profile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pacts/internal/config"
)

func TestDetect(t *testing.T) {
	cfg := config.Default().Profiles

	tests := []struct {
		name     string
		url      string
		html     string
		override string
		want     Kind
	}{
		{"plain html is static", "https://en.wikipedia.org", "<html><body><p>hi</p></body></html>", "", Static},
		{"react root is dynamic", "https://app.example.com", `<div id="root"></div>`, "", Dynamic},
		{"reactroot attr is dynamic", "https://x.com", `<div data-reactroot></div>`, "", Dynamic},
		{"angular is dynamic", "https://y.com", `<app-root ng-version="17.0"></app-root>`, "", Dynamic},
		{"lightning host is dynamic", "https://acme.lightning.force.com/one", "<html></html>", "", Dynamic},
		{"huge html is dynamic", "https://z.com", "<html>" + strings.Repeat("x", 600*1024), "", Dynamic},
		{"override wins", "https://app.example.com", `<div id="root"></div>`, "STATIC", Static},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Detect(cfg, tc.url, tc.html, tc.override)
			assert.Equal(t, tc.want, p.Kind)
		})
	}
}

func TestBudgetsPerKind(t *testing.T) {
	cfg := config.Default().Profiles

	st := Detect(cfg, "https://en.wikipedia.org", "<html></html>", "")
	assert.Equal(t, 2*time.Second, st.Budgets.NetworkIdle)
	assert.Zero(t, st.Budgets.SettleDelay)
	assert.InDelta(t, 0.35, st.Budgets.DriftThreshold, 0.001)

	dy := Detect(cfg, "https://app.example.com", `<div id="root"></div>`, "")
	assert.Equal(t, 5*time.Second, dy.Budgets.NetworkIdle)
	assert.Equal(t, 1500*time.Millisecond, dy.Budgets.SettleDelay)
	assert.InDelta(t, 0.72, dy.Budgets.DriftThreshold, 0.001)
}

func TestDynamicHostOverrideAndTokens(t *testing.T) {
	cfg := config.Default().Profiles
	cfg.DynamicHosts = []string{"myapp.io"}
	cfg.SuccessTokens = map[string]string{"www.youtube.com": "ytd-watch-metadata h1"}

	p := Detect(cfg, "https://sub.myapp.io/home", "<html></html>", "")
	assert.Equal(t, Dynamic, p.Kind)

	yt := Detect(cfg, "https://www.youtube.com", "<html></html>", "")
	assert.Equal(t, "ytd-watch-metadata h1", yt.SuccessToken)
}
