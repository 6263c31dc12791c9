package main

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/poku-e/foodadmin/internal/config"
	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/logger"
)

const testPage = `<!doctype html><html><body>
<div id="app">menu</div>
<div id="chrome-extension-root"><span>ad</span></div>
<iframe src="moz-extension://abc/frame.html"></iframe>
<div style="position:fixed;z-index:2147483647">overlay</div>
<script>console.error("Unchecked runtime.lastError: The message port closed");</script>
<script>throw new Error("Invalid arguments to extensionAdapter");</script>
<script>notDefinedAnywhere();</script>
<script>fetch("chrome-extension://abc/inject.js").catch(function () {});</script>
<script>chrome.runtime.sendMessage({}).catch(function () {});</script>
<script src="/bundle.js"></script>
<script type="application/json">{"not":"js"}</script>
</body></html>`

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testInterference() config.InterferenceConfig {
	return config.InterferenceConfig{Revision: "v3", FetchMode: "reject"}
}

func TestAudit_WritesCSV(t *testing.T) {
	srv := pageServer(t)
	out := filepath.Join(t.TempDir(), "findings.csv")

	sum, err := audit(context.Background(), testInterference(), auditOptions{URL: srv.URL, Out: out}, logger.NewNop())
	require.NoError(t, err)
	require.Len(t, sum.Findings, 3)
	assert.Zero(t, sum.Stats.Total, "audit does not count removals")

	fh, err := os.Open(out)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, header, rows[0])

	rules := []string{rows[1][0], rows[2][0], rows[3][0]}
	assert.Contains(t, rules, `[id*="extension"]`)
	assert.Contains(t, rules, interference.RuleAttribute)
}

func TestAudit_WritesXLSX(t *testing.T) {
	srv := pageServer(t)
	out := filepath.Join(t.TempDir(), "findings.xlsx")

	_, err := audit(context.Background(), testInterference(), auditOptions{URL: srv.URL, Out: out}, logger.NewNop())
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "rule", rows[0][0])
}

func TestAudit_CustomSelectors(t *testing.T) {
	srv := pageServer(t)
	out := filepath.Join(t.TempDir(), "findings.csv")

	opts := auditOptions{URL: srv.URL, Out: out, Selectors: []string{"#app", "[[["}}
	sum, err := audit(context.Background(), testInterference(), opts, logger.NewNop())
	require.NoError(t, err)

	var rules []string
	for _, f := range sum.Findings {
		rules = append(rules, f.Rule)
	}
	assert.Contains(t, rules, "#app")

	opts.Selectors = []string{"[[["}
	_, err = audit(context.Background(), testInterference(), opts, logger.NewNop())
	assert.Error(t, err)
}

func TestAudit_ExecScripts(t *testing.T) {
	srv := pageServer(t)
	out := filepath.Join(t.TempDir(), "findings.csv")

	sum, err := audit(context.Background(), testInterference(), auditOptions{URL: srv.URL, Out: out, Exec: true}, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Scripts.Ran)
	require.Len(t, sum.Scripts.Failed, 1)
	assert.Contains(t, sum.Scripts.Failed[0], "notDefinedAnywhere")
	assert.EqualValues(t, 1, sum.Stats.ConsoleDropped)
	assert.EqualValues(t, 1, sum.Stats.ErrorsBlocked)
	assert.EqualValues(t, 1, sum.Stats.RequestsBlocked)
}

func TestAudit_BadOutput(t *testing.T) {
	srv := pageServer(t)
	_, err := audit(context.Background(), testInterference(), auditOptions{URL: srv.URL, Out: filepath.Join(t.TempDir(), "out.txt")}, logger.NewNop())
	assert.Error(t, err)
}

func TestFetch_RetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer srv.Close()

	body, err := fetch(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", body)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := fetch(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
}

func TestFetch_BlockedURLIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	f := interference.New(interference.MustDenylist(interference.RevisionV3))
	start := time.Now()

	_, err := fetch(context.Background(), f.Client(nil, interference.FetchReject, time.Second), srv.URL+"/inlineForm.html")
	assert.ErrorIs(t, err, interference.ErrRequestBlocked)
	assert.Zero(t, hits.Load())
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.EqualValues(t, 1, f.Snapshot().RequestsBlocked)

	_, err = fetch(context.Background(), f.Client(nil, interference.FetchNoop, time.Second), srv.URL+"/inlineForm.html")
	assert.Error(t, err)
	assert.Zero(t, hits.Load())
}
