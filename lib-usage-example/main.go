package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/w4lkr/shopsync/pkg/fetch"
	"github.com/w4lkr/shopsync/pkg/index"
	"github.com/w4lkr/shopsync/pkg/scrape"
	"github.com/w4lkr/shopsync/pkg/storage"
	"github.com/w4lkr/shopsync/pkg/syncer"
)

func main() {
	// Usage: go run main.go -store "https://shop.example.com" -query "pizza"

	storeFlag := flag.String("store", "", "Store base URL")
	dataFlag := flag.String("data", "./shopsync-data", "Directory for the snapshot files")
	queryFlag := flag.String("query", "pizza", "Search query to run after the sync")

	// Parse the command-line flags
	flag.Parse()

	if *storeFlag == "" {
		fmt.Println("Store URL is required. Please provide it using the -store flag.")
		return
	}

	client, err := fetch.NewClient(fetch.Options{BaseURL: *storeFlag})
	if err != nil {
		log.Fatal(err)
	}
	scraper, err := scrape.New(scrape.Options{BaseURL: *storeFlag})
	if err != nil {
		log.Fatal(err)
	}
	store, err := storage.NewStore(*dataFlag)
	if err != nil {
		log.Fatal(err)
	}

	// The scraper kicks in automatically when the store API is unreachable.
	ix := index.New()
	s := &syncer.Syncer{
		Fetcher: client,
		Scraper: scraper,
		Store:   store,
		Index:   ix,
	}

	run, err := s.Run(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Synced %d products in %d categories (source: %s)\n", run.ItemCount, run.CategoryCount, run.Source)

	for _, r := range ix.Search(*queryFlag) {
		fmt.Println(r.Item.Name, r.Item.Price, r.Item.URL)
	}

	// A second Run inside the same process would reuse the fetch cache
	// until its TTL expires. Drop it to hit the network again.
	client.InvalidateCache()
	if _, err := s.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
