// Command replay inspects persisted world data: it prints a snapshot summary
// and, given a region, dumps archived events from the sqlite archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"agentworld.ai/internal/persistence/indexdb"
	"agentworld.ai/internal/persistence/snapshot"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "snapshot file to summarize")
		dbPath   = flag.String("db", "", "sqlite event archive path")
		region   = flag.String("region", "", "region to dump events for")
		since    = flag.Uint64("since_tick", 0, "dump events with tick greater than this")
		limit    = flag.Int("limit", 100, "max events to dump")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if *snapPath != "" {
		snap, err := snapshot.Read(*snapPath)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		fmt.Printf("snapshot v%d @ tick %d\n", snap.Header.Version, snap.Header.Tick)
		for _, r := range snap.Regions {
			fmt.Printf("  %-16s weather=%-8s agents=%d objects=%d\n",
				r.Name, r.Weather, len(r.Agents), len(r.Objects))
		}
	}

	if *dbPath != "" && *region != "" {
		archive, err := indexdb.Open(*dbPath)
		if err != nil {
			logger.Fatalf("open archive: %v", err)
		}
		defer archive.Close()
		events, err := archive.EventsSince(context.Background(), *region, *since, *limit)
		if err != nil {
			logger.Fatalf("query events: %v", err)
		}
		for _, e := range events {
			fmt.Printf("t=%-8d seq=%-6d %-12s source=%s\n", e.Tick, e.Seq, e.Type, e.Source)
		}
	}
}
