//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"errors"
)

// ErrPCAPDisabled is returned when the binary was built without libpcap.
var ErrPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")

// ReadPCAPFile is a stub implementation when PCAP support is disabled.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, decoder PacketDecoder, stats PacketStatsInterface, opts ReplayOptions) (ReplaySummary, error) {
	return ReplaySummary{}, ErrPCAPDisabled
}
