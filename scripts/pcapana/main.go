package main

import (
	"Go2NetProfile/internal/engine/protocol"
	"Go2NetProfile/pkg/pcap"
	"flag"
	"fmt"
	"log"
)

func main() {
	limit := flag.Int("n", 5, "Number of packets to print")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go [-n 5] <path_to_pcap_file>")
		return
	}

	reader, err := pcap.NewReader(flag.Arg(0), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	packets := make(chan *protocol.PacketInfo)
	errCh := make(chan error, 1)
	go func() { errCh <- reader.ReadPackets(packets) }()

	categorizer := protocol.NewCategorizer(nil)
	i := 0
	for info := range packets {
		i++
		if i > *limit {
			continue // drain so the reader can finish
		}
		fmt.Printf("[%s] %s:%d -> %s:%d proto=%s len=%d category=%s\n",
			info.Timestamp.Format("15:04:05.000"),
			info.FiveTuple.SrcIP, info.FiveTuple.SrcPort,
			info.FiveTuple.DstIP, info.FiveTuple.DstPort,
			info.FiveTuple.Protocol, info.Length,
			categorizer.Category(info.FiveTuple),
		)
	}
	if err := <-errCh; err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d packets parsed, %d skipped\n", i, reader.Skipped())
}
