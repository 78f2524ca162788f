package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Destination ports drawn for generated packets, mapped by the pcap importer
// to DNS, web, video, gaming, remote access and database categories.
var servicePorts = []uint16{53, 80, 443, 443, 443, 1935, 3074, 27015, 22, 3389, 3306}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	hosts := flag.Int("hosts", 20, "Number of campus hosts")
	span := flag.Duration("span", 24*time.Hour, "Time span covered by the capture")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now().Add(-*span)

	log.Printf("Generating %d packets from %d hosts into %s...", *packetCount, *hosts, *outputFile)

	// Timestamps must be non-decreasing in a capture.
	offsets := make([]time.Duration, *packetCount)
	for i := range offsets {
		offsets[i] = time.Duration(rng.Int63n(int64(*span)))
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	for i := 0; i < *packetCount; i++ {
		host := rng.Intn(*hosts)
		srcIP := net.IP{10, 0, byte(host / 256), byte(host%256 + 1)}
		dstIP := net.IP{198, 51, 100, byte(rng.Intn(254) + 1)}
		srcPort := uint16(rng.Intn(65535-1024) + 1024)
		dstPort := servicePorts[rng.Intn(len(servicePorts))]
		payloadSize := rng.Intn(1400) + 50

		ethLayer := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ipLayer := &layers.IPv4{
			SrcIP:   srcIP,
			DstIP:   dstIP,
			Version: 4,
			TTL:     64,
		}

		var transport gopacket.SerializableLayer
		if dstPort == 53 || (dstPort == 443 && rng.Intn(3) == 0) {
			ipLayer.Protocol = layers.IPProtocolUDP
			udpLayer := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
			udpLayer.SetNetworkLayerForChecksum(ipLayer)
			transport = udpLayer
		} else {
			ipLayer.Protocol = layers.IPProtocolTCP
			tcpLayer := &layers.TCP{
				SrcPort: layers.TCPPort(srcPort),
				DstPort: layers.TCPPort(dstPort),
				Seq:     rng.Uint32(),
				ACK:     true,
				PSH:     true,
				Window:  14600,
			}
			tcpLayer.SetNetworkLayerForChecksum(ipLayer)
			transport = tcpLayer
		}

		payload := make([]byte, payloadSize)
		rng.Read(payload)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}
		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, transport, gopacket.Payload(payload)); err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(offsets[i]),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pcapWriter.WritePacket(ci, buf.Bytes()); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}
