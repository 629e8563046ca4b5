// Package discovery advertises relay servers on the local network and
// finds them.
package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service relays register under.
const ServiceType = "_drawboard._tcp"

const (
	boardKey = "board="

	// A single TXT string is length-prefixed by one byte.
	maxTXTLen = 255
)

// Peer is a relay found on the network.
type Peer struct {
	Instance string
	Addr     string
	Boards   []string
}

// Advertiser keeps a relay registered until Shutdown.
type Advertiser struct {
	server *mdns.Server
}

// Advertise registers this host's relay on port. The TXT record carries one
// board=<id> string per board.
func Advertise(port int, boardIDs []string) (*Advertiser, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	info := boardRecords(boardIDs)

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Browse collects the relays that answer within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan []Peer, 1)

	go func() {
		var peers []Peer
		for e := range entries {
			if peer, ok := peerFromEntry(e); ok {
				peers = append(peers, peer)
			}
		}
		done <- peers
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(entries)
	peers := <-done
	if err != nil {
		return peers, fmt.Errorf("mDNS query failed: %w", err)
	}
	return peers, nil
}

// boardRecords builds the TXT strings for boardIDs, leaving out ids too long
// to fit in one string.
func boardRecords(boardIDs []string) []string {
	info := make([]string, 0, len(boardIDs))
	for _, id := range boardIDs {
		field := boardKey + id
		if id == "" || len(field) > maxTXTLen {
			continue
		}
		info = append(info, field)
	}
	return info
}

func peerFromEntry(e *mdns.ServiceEntry) (Peer, bool) {
	if e.AddrV4 == nil || e.Port == 0 {
		return Peer{}, false
	}

	peer := Peer{
		Instance: strings.TrimSuffix(e.Name, "."+ServiceType+".local."),
		Addr:     fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port),
	}
	for _, field := range e.InfoFields {
		if id, ok := strings.CutPrefix(field, boardKey); ok && id != "" {
			peer.Boards = append(peer.Boards, id)
		}
	}
	return peer, true
}
