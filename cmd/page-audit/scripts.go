package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"

	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/jshost"
	"github.com/poku-e/foodadmin/internal/logger"
)

// scriptResult summarizes one pass over a page's inline scripts.
type scriptResult struct {
	Ran    int
	Failed []string // errors that were not extension noise
}

// inlineScripts returns the bodies of the page's classic inline scripts.
func inlineScripts(page *interference.Page) []string {
	var out []string
	page.Do(func(doc *goquery.Document) {
		doc.Find("script").Each(func(_ int, s *goquery.Selection) {
			if _, ok := s.Attr("src"); ok {
				return
			}
			if typ, ok := s.Attr("type"); ok && typ != "" && !strings.Contains(typ, "javascript") {
				return
			}
			if body := strings.TrimSpace(s.Text()); body != "" {
				out = append(out, body)
			}
		})
	})
	return out
}

// runScripts executes scripts in one runtime with the interference adapters
// installed. Uncaught errors go through the filter like a page error event.
func runScripts(f *interference.Filter, mode interference.FetchMode, scripts []string, timeout time.Duration, log logger.Logger) (scriptResult, error) {
	var res scriptResult
	vm := goja.New()
	if err := vm.Set("window", vm.GlobalObject()); err != nil {
		return res, err
	}
	// Pages check for chrome.runtime; give them one whose sendMessage is blocked.
	if _, err := vm.RunString(`var chrome = {runtime: {sendMessage: function () {}}};`); err != nil {
		return res, err
	}
	host, err := jshost.Install(vm, f, jshost.Options{
		Mode:                  mode,
		BlockRuntimeMessaging: true,
		Logger:                log.Named("page"),
		OnError: func(e *interference.ErrorEvent) {
			res.Failed = append(res.Failed, e.Message)
		},
	})
	if err != nil {
		return res, err
	}

	for i, src := range scripts {
		name := fmt.Sprintf("inline-%d.js", i+1)
		res.Ran++
		if _, err := host.RunTimeout(src, name, timeout); err != nil {
			e := &interference.ErrorEvent{Message: err.Error(), Filename: name}
			if !f.HandleError(e) {
				res.Failed = append(res.Failed, e.Message)
				log.Debug("inline script failed", logger.String("script", name), logger.Error(err))
			}
		}
	}
	return res, nil
}
