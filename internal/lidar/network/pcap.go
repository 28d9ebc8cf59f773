//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// gopacketReader reads UDP payloads from a capture through libpcap.
type gopacketReader struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

// OpenPCAP opens a capture file for reading.
func OpenPCAP(pcapFile string) (PCAPReader, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	return &gopacketReader{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
	}, nil
}

func (r *gopacketReader) SetBPFFilter(filter string) error {
	return r.handle.SetBPFFilter(filter)
}

// NextPacket skips frames without a UDP layer.
func (r *gopacketReader) NextPacket() (*PCAPPacket, error) {
	for {
		packet, err := r.source.NextPacket()
		if err != nil {
			return nil, err // io.EOF at end of file
		}
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		return &PCAPPacket{Data: udp.Payload, Timestamp: packet.Metadata().Timestamp}, nil
	}
}

func (r *gopacketReader) Close() { r.handle.Close() }

// ReadPCAPFile replays the sensor packets on udpPort from a capture file
// through decoder. This function is only available when building with the
// 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, decoder PacketDecoder, stats PacketStatsInterface, opts ReplayOptions) (ReplaySummary, error) {
	reader, err := OpenPCAP(pcapFile)
	if err != nil {
		return ReplaySummary{}, err
	}
	defer reader.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := reader.SetBPFFilter(filterStr); err != nil {
		return ReplaySummary{}, fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	log.Printf("PCAP BPF filter set: %s", filterStr)

	return ReplayPackets(ctx, reader, decoder, stats, opts)
}
