package pcap

import (
	"Go2NetProfile/internal/engine/protocol"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type pkt struct {
	at       time.Time
	src, dst net.IP
	sport    uint16
	dport    uint16
	udp      bool
	payload  int
}

func serialize(t *testing.T, p pkt) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, SrcIP: p.src, DstIP: p.dst}
	var transport gopacket.SerializableLayer
	if p.udp {
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{SrcPort: layers.UDPPort(p.sport), DstPort: layers.UDPPort(p.dport)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		transport = udp
	} else {
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{SrcPort: layers.TCPPort(p.sport), DstPort: layers.TCPPort(p.dport), ACK: true}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(make([]byte, p.payload))))
	return buf.Bytes()
}

func writeCapture(t *testing.T, packets []pkt, extra ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	write := func(at time.Time, data []byte) {
		ci := gopacket.CaptureInfo{Timestamp: at, CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
	}
	for _, p := range packets {
		write(p.at, serialize(t, p))
	}
	for _, data := range extra {
		write(time.Unix(0, 0), data)
	}
	return path
}

var (
	t0      = time.Date(2024, 5, 6, 23, 10, 5, 0, time.UTC)
	student = net.IP{10, 0, 0, 5}
	server  = net.IP{192, 0, 2, 9}
)

func TestReader_ReadPackets(t *testing.T) {
	path := writeCapture(t, []pkt{
		{at: t0, src: student, dst: server, sport: 50000, dport: 22, payload: 10},
	}, []byte{0xde, 0xad})

	reader, err := NewReader(path, nil)
	require.NoError(t, err)
	defer reader.Close()

	out := make(chan *protocol.PacketInfo)
	errCh := make(chan error, 1)
	go func() { errCh <- reader.ReadPackets(out) }()

	var got []*protocol.PacketInfo
	for info := range out {
		got = append(got, info)
	}
	require.NoError(t, <-errCh)
	require.Len(t, got, 1)
	assert.Equal(t, uint16(22), got[0].FiveTuple.DstPort)
	assert.True(t, t0.Equal(got[0].Timestamp))
	assert.Equal(t, 1, reader.Skipped())
}

func TestNewReader_Errors(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.pcap"), nil)
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("not a capture"), 0644))
	_, err = NewReader(garbage, nil)
	assert.Error(t, err)
}

func TestConvert_FoldsByFlowAndWindow(t *testing.T) {
	path := writeCapture(t, []pkt{
		{at: t0, src: student, dst: server, sport: 50000, dport: 22, payload: 100},
		{at: t0.Add(20 * time.Second), src: student, dst: server, sport: 50000, dport: 22, payload: 200},
		{at: t0.Add(30 * time.Second), src: student, dst: server, sport: 40000, dport: 443, udp: true, payload: 50},
		{at: t0.Add(2 * time.Minute), src: student, dst: server, sport: 50000, dport: 22, payload: 100},
		{at: t0.Add(5 * time.Second), src: net.IP{10, 0, 0, 6}, dst: server, sport: 41000, dport: 53, udp: true, payload: 30},
	})

	records, stats, err := Convert(path, Options{
		Users:          map[string]string{"10.0.0.5": "alice"},
		PortCategories: map[int]string{22: "SSH"},
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Packets: 5, Records: 4}, stats)
	require.Len(t, records, 4)

	first := records[0]
	assert.Equal(t, "alice", first.User)
	assert.Equal(t, time.Date(2024, 5, 6, 23, 10, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, "SSH", first.AppCategory)
	assert.Equal(t, protocol.TCP, first.Protocol)
	// Two packets of 40 header bytes plus payload.
	assert.Equal(t, int64(140+240), first.Bytes)

	assert.Equal(t, protocol.QUIC, records[1].Protocol)
	assert.Equal(t, "Web Browse", records[1].AppCategory)

	assert.Equal(t, "10.0.0.6", records[2].User)
	assert.Equal(t, "DNS", records[2].AppCategory)

	assert.Equal(t, time.Date(2024, 5, 6, 23, 12, 0, 0, time.UTC), records[3].Timestamp)
}
