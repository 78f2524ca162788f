package pcap

import (
	"Go2NetProfile/internal/engine/protocol"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"
)

// Reader reads packets from a classic pcap file.
type Reader struct {
	file   *os.File
	reader *pcapgo.Reader
	logger *zap.Logger

	skipped int
}

// NewReader creates a new pcap reader for the given file path. Only Ethernet
// captures are supported.
func NewReader(filePath string, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	reader, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	if reader.LinkType() != layers.LinkTypeEthernet {
		file.Close()
		return nil, fmt.Errorf("unsupported link type %s", reader.LinkType())
	}
	return &Reader{file: file, reader: reader, logger: logger.Named("pcap")}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Skipped is the number of packets dropped as unsupported so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// ReadPackets reads all packets from the pcap file and sends the parsed
// PacketInfo to the provided channel. It closes the channel when done.
func (r *Reader) ReadPackets(out chan<- *protocol.PacketInfo) error {
	defer close(out)
	for {
		data, ci, err := r.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read packet: %w", err)
		}
		info, err := protocol.ParsePacket(data, ci.Timestamp)
		if err != nil {
			r.skipped++
			r.logger.Debug("skipping packet", zap.Error(err))
			continue
		}
		out <- info
	}
}
