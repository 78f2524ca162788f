package protocol

import (
	"errors"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Transport names as they appear in flow records.
const (
	TCP  = "TCP"
	UDP  = "UDP"
	QUIC = "QUIC"
)

const quicPort = 443

// ErrUnsupported marks packets that carry no IPv4 TCP/UDP flow.
var ErrUnsupported = errors.New("unsupported packet")

// FiveTuple identifies a flow.
type FiveTuple struct {
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
	Protocol string
}

// PacketInfo holds the fields of one packet needed to build flow records.
type PacketInfo struct {
	Timestamp time.Time
	Length    int
	FiveTuple FiveTuple
}

// ParsePacket uses gopacket to decode a raw Ethernet frame and extract key
// information. UDP on port 443 is reported as QUIC.
func ParsePacket(data []byte, ts time.Time) (*PacketInfo, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	info := &PacketInfo{Timestamp: ts, Length: len(data)}

	ipLayer, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return nil, ErrUnsupported
	}
	info.FiveTuple.SrcIP = ipString(ipLayer.SrcIP)
	info.FiveTuple.DstIP = ipString(ipLayer.DstIP)
	if ipLayer.Length > 0 {
		info.Length = int(ipLayer.Length)
	}

	if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		info.FiveTuple.SrcPort = uint16(tcp.SrcPort)
		info.FiveTuple.DstPort = uint16(tcp.DstPort)
		info.FiveTuple.Protocol = TCP
	} else if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		info.FiveTuple.SrcPort = uint16(udp.SrcPort)
		info.FiveTuple.DstPort = uint16(udp.DstPort)
		info.FiveTuple.Protocol = UDP
		if udp.SrcPort == quicPort || udp.DstPort == quicPort {
			info.FiveTuple.Protocol = QUIC
		}
	} else {
		return nil, ErrUnsupported
	}
	return info, nil
}

func ipString(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
