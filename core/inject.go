package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pkt.systems/browserx/internal/logx"
	"pkt.systems/browserx/internal/metrics"
	"pkt.systems/browserx/internal/scripts"
	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

const (
	lifetimeScriptName = "lifetime"
	themeStyleID       = "browserx-theme"
	installMarker      = "/*browserx:install:"
)

// Install outcomes reported by the wrapped scripts.
const (
	installInstalled = "installed"
	installRescanned = "rescanned"
	installPresent   = "present"
	installFailed    = "failed"
)

// injectResult is the outcome of one script for one page lifetime.
type injectResult struct {
	Name    string
	Outcome string
	Err     error
}

type injector struct {
	set       scripts.Set
	newTabURL string
	timeout   time.Duration
	metrics   *metrics.Metrics
}

func newInjector(set scripts.Set, newTabURL string, timeout time.Duration, m *metrics.Metrics) *injector {
	return &injector{set: set, newTabURL: newTabURL, timeout: timeout, metrics: m}
}

func (in *injector) isNewTabPage(url string) bool {
	url = strings.TrimSpace(url)
	return url == "" || url == "about:blank" || url == in.newTabURL
}

// install runs every page script into a freshly loaded document. Each script is
// attempted even when an earlier one failed. New tab pages only receive the theme.
func (in *injector) install(ctx context.Context, surface Surface, tabID schema.TabID, gen schema.Generation, url string, lang schema.LanguageCode, theme schema.ThemeSettings) []injectResult {
	log := logx.WithGeneration(logx.WithTab(ctx, tabID), gen)
	if in.isNewTabPage(url) {
		res := injectResult{Name: themeStyleID, Outcome: installInstalled}
		cctx, cancel := context.WithTimeout(ctx, in.timeout)
		res.Err = surface.InsertCSS(cctx, themeStyleID, in.set.ThemeCSS(theme))
		cancel()
		if res.Err != nil {
			res.Outcome = installFailed
			logScriptFailure(log, themeStyleID, res.Err)
		}
		in.metrics.Injection(res.Name, res.Outcome)
		return []injectResult{res}
	}

	results := make([]injectResult, 0, len(in.set.Scripts)+1)
	results = append(results, in.run(ctx, surface, lifetimeScriptName, lifetimeScript(tabID, gen, lang)))
	for _, script := range in.set.Scripts {
		results = append(results, in.run(ctx, surface, script.Name, wrapScript(script.Name, script.Body)))
	}
	installed := 0
	for _, res := range results {
		if res.Err != nil {
			logScriptFailure(log, res.Name, res.Err)
			continue
		}
		if res.Outcome == installInstalled {
			installed++
		}
	}
	log.Debug("page scripts injected", "url", url, "installed", installed, "scripts", len(results))
	return results
}

// rescan re-runs same-document scripts after in-page navigation. Already installed
// scripts only refresh their DOM scan.
func (in *injector) rescan(ctx context.Context, surface Surface, tabID schema.TabID, gen schema.Generation) []injectResult {
	log := logx.WithGeneration(logx.WithTab(ctx, tabID), gen)
	var results []injectResult
	for _, script := range in.set.Scripts {
		if !script.SameDocument {
			continue
		}
		res := in.run(ctx, surface, script.Name, wrapScript(script.Name, script.Body))
		if res.Err != nil {
			logScriptFailure(log, res.Name, res.Err)
		}
		results = append(results, res)
	}
	return results
}

func (in *injector) run(ctx context.Context, surface Surface, name, source string) injectResult {
	cctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()
	res := injectResult{Name: name}
	raw, err := surface.ExecuteScript(cctx, source)
	if err != nil {
		res.Outcome = installFailed
		res.Err = err
	} else {
		res.Outcome = installOutcome(raw)
	}
	in.metrics.Injection(name, res.Outcome)
	return res
}

func installOutcome(raw json.RawMessage) string {
	var outcome string
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return installInstalled
	}
	switch outcome {
	case installInstalled, installRescanned, installPresent:
		return outcome
	default:
		return installInstalled
	}
}

func logScriptFailure(log pslog.Logger, name string, err error) {
	if schema.IsScriptError(err) {
		log.Debug("page script skipped", "script", name, "err", err)
		return
	}
	log.Warn("page script failed", "script", name, "err", err)
}

// wrapScript guards a script body so it installs once per document. Re-running an
// installed script calls its rescan hook when it registered one.
func wrapScript(name, body string) string {
	quoted, _ := json.Marshal(name)
	var b strings.Builder
	b.Grow(len(body) + 512)
	b.WriteString(installMarker)
	b.WriteString(name)
	b.WriteString("*/\n(function () {\n")
	b.WriteString("var ns = window.__browserx = window.__browserx || {};\n")
	b.WriteString("ns.installed = ns.installed || {};\n")
	b.WriteString("ns.rescan = ns.rescan || {};\n")
	fmt.Fprintf(&b, "if (ns.installed[%s]) {\n", quoted)
	fmt.Fprintf(&b, "  if (typeof ns.rescan[%s] === 'function') { ns.rescan[%s](); return %q; }\n", quoted, quoted, installRescanned)
	fmt.Fprintf(&b, "  return %q;\n}\n", installPresent)
	fmt.Fprintf(&b, "ns.installed[%s] = true;\n", quoted)
	b.WriteString(body)
	fmt.Fprintf(&b, "\nreturn %q;\n})()", installInstalled)
	return b.String()
}

// lifetimeToken identifies one page lifetime of one tab inside the page.
func lifetimeToken(tabID schema.TabID, gen schema.Generation) string {
	return fmt.Sprintf("%d:%d", tabID, gen)
}

// lifetimeScript stamps the document with its page lifetime. Deliveries check the
// stamp so a result can never land in a newer document.
func lifetimeScript(tabID schema.TabID, gen schema.Generation, lang schema.LanguageCode) string {
	token, _ := json.Marshal(lifetimeToken(tabID, gen))
	language, _ := json.Marshal(string(lang))
	var b strings.Builder
	b.WriteString(installMarker)
	b.WriteString(lifetimeScriptName)
	b.WriteString("*/\n(function () {\n")
	b.WriteString("var ns = window.__browserx = window.__browserx || {};\n")
	b.WriteString("ns.installed = ns.installed || {};\n")
	b.WriteString("ns.rescan = ns.rescan || {};\n")
	fmt.Fprintf(&b, "if (ns.lifetime === %s) { return %q; }\n", token, installPresent)
	fmt.Fprintf(&b, "ns.lifetime = %s;\n", token)
	fmt.Fprintf(&b, "ns.translationLanguage = %s;\n", language)
	fmt.Fprintf(&b, "return %q;\n})()", installInstalled)
	return b.String()
}

// deliveryScript posts msg into the page if it is still on the given lifetime.
// It evaluates to true when the message was posted.
func deliveryScript(token string, msg schema.HostMessage) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	quoted, _ := json.Marshal(token)
	var b strings.Builder
	b.WriteString("(function () {\n")
	b.WriteString("var ns = window.__browserx;\n")
	fmt.Fprintf(&b, "if (!ns || ns.lifetime !== %s) { return false; }\n", quoted)
	if msg.Type == schema.MsgSetTranslationLanguage && msg.Language != "" {
		lang, _ := json.Marshal(string(msg.Language))
		fmt.Fprintf(&b, "ns.translationLanguage = %s;\n", lang)
	}
	fmt.Fprintf(&b, "window.postMessage(%s, '*');\n", payload)
	b.WriteString("return true;\n})()")
	return b.String(), nil
}

// delivered reports whether a delivery script evaluated to true.
func delivered(raw json.RawMessage) bool {
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false
	}
	return ok
}
