package gate

import (
	"context"
	"strings"

	"pacts/internal/browser"
	"pacts/internal/config"
	"pacts/internal/logging"
	"pacts/internal/types"
)

// Sentinel polls for validation/error dialogs before each step and after
// actions that can trigger validation. Feature-flagged via config.
type Sentinel struct {
	cfg    config.SentinelConfig
	driver browser.Driver
}

// NewSentinel builds the dialog sentinel; a disabled config yields a
// sentinel whose Scan never fires.
func NewSentinel(d browser.Driver, cfg config.SentinelConfig) *Sentinel {
	return &Sentinel{cfg: cfg, driver: d}
}

// ScanResult reports what the sentinel saw and did.
type ScanResult struct {
	Fired  bool
	Text   string
	Closed bool
}

// Scan looks for an open dialog whose visible text matches the error
// keyword set. On a match it attempts to close the dialog (configured
// close buttons, then ESC) and reports the hit; the caller marks the step
// as timeout so the healer gets a chance.
func (s *Sentinel) Scan(ctx context.Context) ScanResult {
	if !s.cfg.Enabled {
		return ScanResult{}
	}
	log := logging.Get(logging.CategoryGate)

	dialogSel, _ := browser.RoleSelector("dialog")
	dialogs, err := s.driver.Query(ctx, dialogSel)
	if err != nil || len(dialogs) == 0 {
		return ScanResult{}
	}

	for _, dialog := range dialogs {
		if vis, err := dialog.Visible(); err != nil || !vis {
			continue
		}
		text := dialog.Text()
		if !s.matchesKeyword(text) {
			continue
		}
		log.Warn("dialog sentinel fired: %q", truncate(text, 120))
		closed := s.close(ctx, dialog)
		return ScanResult{Fired: true, Text: text, Closed: closed}
	}
	return ScanResult{}
}

func (s *Sentinel) matchesKeyword(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range s.cfg.Keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (s *Sentinel) close(ctx context.Context, dialog browser.Element) bool {
	for _, closeSel := range s.cfg.CloseSelectors {
		btns, err := s.driver.QueryIn(ctx, dialog, closeSel)
		if err != nil || len(btns) == 0 {
			continue
		}
		if err := btns[0].Click(); err == nil {
			return true
		}
	}
	// Last resort: ESC at the page level.
	if err := s.driver.PressKey(ctx, "Escape"); err != nil {
		logging.Get(logging.CategoryGate).Debug("sentinel escape failed: %v", err)
		return false
	}
	return true
}

// FailureKind is what a sentinel hit turns into at the step level.
func (ScanResult) FailureKind() types.FailureKind { return types.FailureTimeout }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
