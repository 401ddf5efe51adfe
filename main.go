package main

import (
	"log"
	"net/http"

	"partyhub/pkg/games/chessduel"
	"partyhub/pkg/games/guessword"
	"partyhub/pkg/partyhub"
)

func main() {
	cfg, err := partyhub.ParseConfig()
	if err != nil {
		log.Fatal(err)
	}

	registry := partyhub.NewRegistry()
	registry.Register("guessword", guessword.Handler{})
	registry.Register("chessduel", chessduel.Handler{})

	mgr := partyhub.NewManager(registry, cfg)
	stopGC := mgr.StartGC()
	defer stopGC()

	srv := partyhub.NewServer(mgr, cfg.BaseURL)
	log.Printf("[listening on %s] game types: %v", cfg.Addr, registry.Types())
	log.Fatal(http.ListenAndServe(cfg.Addr, srv))
}
