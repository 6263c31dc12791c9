package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/poku-e/foodadmin/internal/catalog"
	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/logger"
	"github.com/poku-e/foodadmin/internal/prefs"
)

const (
	defaultSearchLimit = 10
	maxSignalBody      = 64 << 10
	maxSanitizeBody    = 2 << 20
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	out, err := s.shell.HTML()
	if err != nil {
		s.log.Error("render admin shell", logger.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.WriteString(w, out); err != nil {
		s.log.Warn("write response", logger.Error(err))
	}
}

func (s *Server) handleFoods(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid 'limit' query param", http.StatusBadRequest)
			return
		}
		limit = n
	}
	foods := s.opts.Catalog.Search(r.URL.Query().Get("search"), limit)
	if foods == nil {
		foods = []catalog.Food{}
	}
	writeJSON(w, http.StatusOK, foods)
}

func (s *Server) handleFood(w http.ResponseWriter, r *http.Request) {
	food, err := s.opts.Catalog.Get(r.PathValue("id"))
	if errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, food)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.opts.Prefs.All())
	case http.MethodPost, http.MethodPut:
		var changes map[string]string
		if !decodeJSON(w, r, maxSignalBody, &changes) {
			return
		}
		if err := s.opts.Prefs.Update(changes); err != nil {
			if errors.Is(err, prefs.ErrInvalidPreference) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.log.Error("save preferences", logger.Error(err))
			http.Error(w, "could not save preferences", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, s.opts.Prefs.All())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type denylistResp struct {
	Revision interference.Revision `json:"revision"`
	Entries  []string              `json:"entries"`
}

func (s *Server) handleDenylist(w http.ResponseWriter, r *http.Request) {
	dl := s.opts.Filter.Denylist()
	writeJSON(w, http.StatusOK, denylistResp{Revision: dl.Revision(), Entries: dl.Entries()})
}

// signalReq is one browser-side signal reported for classification.
type signalReq struct {
	Kind      interference.Kind `json:"kind"`
	Message   string            `json:"message"`
	Filename  string            `json:"filename"`
	Source    string            `json:"source"`
	Reason    any               `json:"reason"`
	URL       string            `json:"url"`
	Args      []any             `json:"args"`
	EventType string            `json:"type"`
	Attrs     map[string]string `json:"attrs"`
	Tag       string            `json:"tag"`
}

type signalResp struct {
	Related bool              `json:"related"`
	Kind    interference.Kind `json:"kind"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalReq
	if !decodeJSON(w, r, maxSignalBody, &req) {
		return
	}
	related, err := s.classify(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, signalResp{Related: related, Kind: req.Kind})
}

// classify routes a signal through the adapter for its kind.
func (s *Server) classify(req signalReq) (bool, error) {
	f := s.opts.Filter
	switch req.Kind {
	case interference.KindError:
		return f.HandleError(&interference.ErrorEvent{
			Message:  req.Message,
			Filename: req.Filename,
			Source:   req.Source,
		}), nil
	case interference.KindRejection:
		return f.HandleRejection(&interference.RejectionEvent{Reason: req.Reason}), nil
	case interference.KindRequest:
		return f.BlocksRequest(req.URL), nil
	case interference.KindConsole:
		if req.Args == nil && req.Message != "" {
			req.Args = []any{req.Message}
		}
		return f.BlocksConsole(req.Args...), nil
	case interference.KindListener:
		eventType := req.EventType
		if eventType == "" {
			eventType = interference.MessageEvent
		}
		return f.BlocksListener(eventType, req.Source), nil
	case interference.KindElement:
		return f.BlocksElement(elementNode(req.Tag, req.Attrs)), nil
	}
	return false, fmt.Errorf("unknown signal kind %q", req.Kind)
}

func elementNode(tag string, attrs map[string]string) *html.Node {
	if tag == "" {
		tag = "div"
	}
	n := &html.Node{Type: html.ElementNode, Data: strings.ToLower(tag)}
	for _, key := range []string{"src", "id", "class", "style"} {
		if v, ok := attrs[key]; ok {
			n.Attr = append(n.Attr, html.Attribute{Key: key, Val: v})
		}
	}
	return n
}

type sanitizeResp struct {
	HTML    string `json:"html"`
	Removed int    `json:"removed"`
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSanitizeBody))
	if err != nil {
		writeBodyError(w, err)
		return
	}
	page, err := interference.NewPage(bytes.NewReader(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	removed := s.opts.Filter.Observer(page).Scan()
	removed += s.opts.Sweeper.Sweep(page)

	out, err := page.HTML()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sanitizeResp{HTML: out, Removed: removed})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.opts.Filter.Reset()
	writeJSON(w, http.StatusOK, s.opts.Filter.Snapshot())
}

// decodeJSON decodes a body of at most limit bytes into v. On failure it
// writes 413 or 400 and reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		writeBodyError(w, err)
		return false
	}
	return true
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "invalid request body", http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
