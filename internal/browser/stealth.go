package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// stealthJS is the fixed set of automation-fingerprint mitigations. It is
// deliberately small: hide the webdriver flag, give the plugin and language
// lists plausible shapes, and neutralize the permissions probe headless
// Chrome fails. Anything beyond this is out of scope.
const stealthJS = `
(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

	if (navigator.plugins.length === 0) {
		Object.defineProperty(navigator, 'plugins', {
			get: () => [1, 2, 3],
		});
	}

	if (!navigator.languages || navigator.languages.length === 0) {
		Object.defineProperty(navigator, 'languages', {
			get: () => ['en-US', 'en'],
		});
	}

	const origQuery = window.navigator.permissions && window.navigator.permissions.query;
	if (origQuery) {
		window.navigator.permissions.query = (parameters) =>
			parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: origQuery(parameters);
	}

	if (window.chrome === undefined) {
		window.chrome = { runtime: {} };
	}
})();
`

// installStealth injects the mitigations before any page script runs.
func installStealth(page *rod.Page) error {
	_, err := proto.PageAddScriptToEvaluateOnNewDocument{
		Source: stealthJS,
	}.Call(page)
	return err
}
