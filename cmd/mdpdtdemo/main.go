/*
mdpdtdemo drives a model (fixed-partition or MDP-DT, whichever config.yaml
describes) with synthetic traffic and serves its live state over HTTP and
websocket. It exists to exercise the core against a continuous stream of
observations the way a real deployment would, not to demonstrate any
particular control problem; the synthetic generators pick uniformly random
actions and measurements, so nothing about their output should be read as a
meaningful policy.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"runtime"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"github.com/cno-optimizer/mdpdt/action"
	"github.com/cno-optimizer/mdpdt/config"
	"github.com/cno-optimizer/mdpdt/internal/valuecache"
	"github.com/cno-optimizer/mdpdt/model"
)

var (
	configPath *string
	addr       *string
	nworkers   *int
	tickMillis *int
)

func init() {
	configPath = flag.String("config", "./config.yaml", "path to the model construction config")
	addr = flag.String("addr", ":8080", "http listen address")
	nworkers = flag.Int("nworkers", runtime.NumCPU(), "number of synthetic traffic generators")
	tickMillis = flag.Int("tick", 50, "milliseconds between synthetic observations per worker")
	flag.Parse()
}

func main() {
	if err := runApp(); err != nil {
		fmt.Println(err)
	}
}

func runApp() (err error) {
	m, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	parameters, actions := demoVocabulary(m)

	seed := rand.New(rand.NewSource(1))
	workers := make([]<-chan observation, 0, *nworkers)
	for i := 0; i < *nworkers; i++ {
		rng := rand.New(rand.NewSource(seed.Int63()))
		workers = append(workers, generateTraffic(appCtx, parameters, actions, rng, time.Duration(*tickMillis)*time.Millisecond))
	}
	observations := channerics.Merge(appCtx.Done(), workers...)

	cache := valuecache.New(0)
	feed := newHub()

	go drive(appCtx, m, observations, cache, feed)

	log.Printf("listening on %s", *addr)
	return http.ListenAndServe(*addr, newRouter(m, cache, feed))
}

// demoVocabulary extracts the parameter and action universe from whichever
// concrete model config.Load built, so the traffic generators can produce
// measurements and actions the model actually recognizes.
func demoVocabulary(m model.Model) (parameters []string, actions []action.Action) {
	switch concrete := m.(type) {
	case *model.FixedModel:
		return concrete.Parameters(), concrete.Actions()
	case *model.TreeModel:
		return concrete.Parameters(), concrete.Actions()
	default:
		return nil, nil
	}
}
