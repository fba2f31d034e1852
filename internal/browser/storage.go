package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"pacts/internal/logging"
)

// storageState is the on-disk session snapshot: cookies plus both web
// storage areas for the host the page is on.
type storageState struct {
	Cookies      []*proto.NetworkCookie `json:"cookies"`
	LocalJSON    string                 `json:"local_storage"`
	SessionJSON  string                 `json:"session_storage"`
	CapturedFrom string                 `json:"captured_from"`
}

// SaveStorageState snapshots cookies and web storage to path.
func (d *rodDriver) SaveStorageState(ctx context.Context, path string) error {
	page := d.page.Context(ctx)

	cookiesRes, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return fmt.Errorf("get cookies: %w", err)
	}

	state := storageState{
		Cookies:      cookiesRes.Cookies,
		LocalJSON:    snapshotStorage(page, "localStorage"),
		SessionJSON:  snapshotStorage(page, "sessionStorage"),
		CapturedFrom: d.CurrentURL(),
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write storage state: %w", err)
	}
	logging.Get(logging.CategoryBrowser).Debug("saved storage state (%d cookies) to %s", len(state.Cookies), path)
	return nil
}

// LoadStorageState restores a snapshot saved by SaveStorageState. Missing
// file is not an error; cold starts are normal.
func (d *rodDriver) LoadStorageState(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read storage state: %w", err)
	}

	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode storage state: %w", err)
	}

	page := d.page.Context(ctx)

	params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Priority: c.Priority,
		})
	}
	if len(params) > 0 {
		if err := page.SetCookies(params); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("restore cookies: %v", err)
		}
	}

	restoreStorage(page, state.LocalJSON, state.SessionJSON)
	logging.Get(logging.CategoryBrowser).Debug("restored storage state (%d cookies) from %s", len(params), path)
	return nil
}

func snapshotStorage(page *rod.Page, store string) string {
	jsFunc := fmt.Sprintf(`() => {
		try {
			const out = {};
			for (const key of Object.keys(%s)) {
				out[key] = %s.getItem(key);
			}
			return JSON.stringify(out);
		} catch (e) {
			return "{}";
		}
	}`, store, store)

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           jsFunc,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return "{}"
	}
	return res.Value.String()
}

func restoreStorage(page *rod.Page, localJSON, sessionJSON string) {
	_, _ = page.Evaluate(&rod.EvalOptions{
		JS: `
		(local, session) => {
			try {
				const l = JSON.parse(local || "{}");
				Object.entries(l).forEach(([k, v]) => localStorage.setItem(k, v));
			} catch (e) {}
			try {
				const s = JSON.parse(session || "{}");
				Object.entries(s).forEach(([k, v]) => sessionStorage.setItem(k, v));
			} catch (e) {}
		}
		`,
		JSArgs:       []interface{}{localJSON, sessionJSON},
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
}

// StatePathFor returns the storage-state file for a host under dir.
func StatePathFor(dir, host string) string {
	return filepath.Join(dir, host+".json")
}
