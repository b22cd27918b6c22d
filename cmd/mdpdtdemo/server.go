package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/cno-optimizer/mdpdt/internal/valuecache"
	"github.com/cno-optimizer/mdpdt/internal/wsclient"
	"github.com/cno-optimizer/mdpdt/model"
)

// hub fans one stream of value snapshots out to every connected websocket
// client. channerics has no documented broadcast primitive in the pack
// this demo was built from, so this is a small hand-rolled subscriber
// registry rather than a borrowed one.
type hub struct {
	mu   sync.Mutex
	subs map[chan []float64]struct{}
}

func newHub() *hub {
	return &hub{subs: map[chan []float64]struct{}{}}
}

func (h *hub) subscribe() chan []float64 {
	ch := make(chan []float64, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan []float64) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *hub) broadcast(v []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

type stateView struct {
	Num    int     `json:"num"`
	Value  float64 `json:"value"`
	Visits int     `json:"visits"`
}

func newRouter(m model.Model, cache *valuecache.Cache, feed *hub) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/state", stateHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/splits", splitsHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/ws", wsHandler(feed))
	return r
}

func stateHandler(m model.Model) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var views []stateView
		switch concrete := m.(type) {
		case *model.FixedModel:
			for _, s := range concrete.States() {
				views = append(views, stateView{Num: s.Num, Value: s.V, Visits: s.Visits})
			}
		case *model.TreeModel:
			for _, s := range concrete.DumpStates() {
				views = append(views, stateView{Num: s.Num, Value: s.V, Visits: s.Visits})
			}
		default:
			http.Error(w, "unrecognized model kind", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	}
}

func splitsHandler(m model.Model) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tm, ok := m.(*model.TreeModel)
		if !ok {
			http.Error(w, "split counters are only tracked by the tree model", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tm.Splits())
	}
}

func wsHandler(feed *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := feed.subscribe()
		defer feed.unsubscribe(sub)

		cli, err := wsclient.NewClient[[]float64](sub, w, r)
		if err != nil {
			return
		}
		_ = cli.Sync()
	}
}
