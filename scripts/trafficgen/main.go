package main

import (
	"Go2NetProfile/internal/loader"
	"Go2NetProfile/internal/model"
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"time"
)

// persona shapes the synthetic traffic of one user.
type persona struct {
	name       string
	categories map[string]int // weight per app category
	hours      []int          // hours the user is active in
	ports      []int          // destination ports used
}

var personas = []persona{
	{"gamer", map[string]int{"Gaming": 6, "Video Streaming": 2, "Web Browse": 1, "DNS": 1}, []int{19, 20, 21, 22, 23, 0, 1}, []int{3074, 27015, 443, 53}},
	{"streamer", map[string]int{"Video Streaming": 7, "Social Media": 2, "DNS": 1}, []int{12, 13, 18, 19, 20, 21, 22}, []int{443, 1935, 53}},
	{"scholar", map[string]int{"Education": 5, "Web Browse": 3, "Instant Messaging": 1, "DNS": 1}, []int{6, 7, 8, 9, 10, 11, 14, 15, 16}, []int{443, 80, 53}},
	{"chatter", map[string]int{"Social Media": 4, "Instant Messaging": 4, "Web Browse": 1}, []int{9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, []int{443, 5222}},
	{"admin", map[string]int{"Remote Access": 4, "Database": 3, "Web Browse": 2, "DNS": 1}, []int{9, 10, 11, 14, 15, 16, 17}, []int{22, 3389, 3306, 8080, 8000, 5000, 53}},
}

func main() {
	outputFile := flag.String("o", "data/traffic.csv", "Output CSV file path")
	users := flag.Int("u", 50, "Number of users to generate")
	perUser := flag.Int("n", 200, "Records per user")
	days := flag.Int("d", 7, "Number of days covered")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -*days)

	log.Printf("Generating %d records for %d users into %s...", *users**perUser, *users, *outputFile)

	var records []model.FlowRecord
	for u := 0; u < *users; u++ {
		p := personas[u%len(personas)]
		user := fmt.Sprintf("%s%03d", p.name, u)
		srcIP := fmt.Sprintf("10.%d.%d.%d", 10+u/65536, (u/256)%256, u%256)
		for i := 0; i < *perUser; i++ {
			day := rng.Intn(*days)
			hour := p.hours[rng.Intn(len(p.hours))]
			ts := start.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(rng.Intn(3600))*time.Second)
			dstPort := p.ports[rng.Intn(len(p.ports))]
			protocol := "TCP"
			if dstPort == 53 || rng.Intn(10) == 0 {
				protocol = "UDP"
			}
			records = append(records, model.FlowRecord{
				Timestamp:   ts,
				SrcIP:       srcIP,
				DstIP:       fmt.Sprintf("198.51.100.%d", rng.Intn(254)+1),
				SrcPort:     rng.Intn(65535-1024) + 1024,
				DstPort:     dstPort,
				Protocol:    protocol,
				Bytes:       int64(rng.Intn(1_000_000) + 100),
				AppCategory: pick(rng, p.categories),
				User:        user,
			})
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := loader.WriteCSV(w, records); err != nil {
		log.Fatalf("Failed to write records: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to flush output: %v", err)
	}
	log.Printf("Successfully generated %d records into %s.", len(records), *outputFile)
}

// pick draws a category according to its weight.
func pick(rng *rand.Rand, weights map[string]int) string {
	names := make([]string, 0, len(weights))
	total := 0
	for name, w := range weights {
		names = append(names, name)
		total += w
	}
	sort.Strings(names)
	n := rng.Intn(total)
	for _, name := range names {
		n -= weights[name]
		if n < 0 {
			return name
		}
	}
	return names[len(names)-1]
}
