package discovery

import (
	"net"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
)

func TestPeerFromEntry(t *testing.T) {
	peer, ok := peerFromEntry(&mdns.ServiceEntry{
		Name:       "studio." + ServiceType + ".local.",
		AddrV4:     net.IPv4(192, 168, 1, 20),
		Port:       8080,
		InfoFields: []string{"board=default", "board=sketch", "other=1"},
	})

	assert.True(t, ok)
	assert.Equal(t, "studio", peer.Instance)
	assert.Equal(t, "192.168.1.20:8080", peer.Addr)
	assert.Equal(t, []string{"default", "sketch"}, peer.Boards)
}

func TestPeerFromEntrySkipsIncomplete(t *testing.T) {
	_, ok := peerFromEntry(&mdns.ServiceEntry{Name: "x", Port: 8080})
	assert.False(t, ok)

	_, ok = peerFromEntry(&mdns.ServiceEntry{Name: "x", AddrV4: net.IPv4(10, 0, 0, 1)})
	assert.False(t, ok)
}

func TestBoardRecords(t *testing.T) {
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = uuid.New().String()
	}

	info := boardRecords(append(ids, "", strings.Repeat("x", 300)))
	assert.Len(t, info, len(ids))
	for _, field := range info {
		assert.LessOrEqual(t, len(field), 255)
	}

	peer, ok := peerFromEntry(&mdns.ServiceEntry{Name: "relay", AddrV4: net.IPv4(10, 0, 0, 2), Port: 8080, InfoFields: info})
	assert.True(t, ok)
	assert.Equal(t, ids, peer.Boards)
}
