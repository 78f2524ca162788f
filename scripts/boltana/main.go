package main

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/writer/boltstore"
	"fmt"
	"log"
	"os"
	"sort"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/boltana/main.go <profiles.db> [run_key]")
		os.Exit(1)
	}

	store, err := boltstore.Open(config.BoltConfig{Path: os.Args[1]}, nil)
	if err != nil {
		log.Fatalf("Unable to open store: %v", err)
	}
	defer store.Close()

	if len(os.Args) < 3 {
		runs, err := store.Runs()
		if err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		fmt.Println("Stored runs:")
		for _, r := range runs {
			fmt.Printf("  %s  run=%s  generated=%s\n", r.Key, r.RunID, r.GeneratedAt.Format(time.RFC3339))
		}
		return
	}

	snap, err := store.Get(os.Args[2])
	if err != nil {
		log.Fatalf("Failed to load run: %v", err)
	}
	fmt.Printf("Run %s from %s: %d records, %d users\n", snap.RunID, snap.Source, snap.RecordCount, len(snap.Profiles))

	index := snap.Profiles.TagIndex()
	tags := make([]string, 0, len(index))
	for tag := range index {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Printf("  %-26s %d\n", tag, len(index[tag]))
	}
}
