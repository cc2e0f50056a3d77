package membership

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// ErrNotIPv4 is returned when a peer address cannot be packed into a PeerID.
var ErrNotIPv4 = errors.New("peer address must be ipv4")

// PeerID identifies a cluster member by its network address. Two PeerIDs
// are equal iff both host and port match, so the type can be used as a map
// key and compared with ==.
type PeerID struct {
	Host uint32
	Port uint16
}

// FromAddrPort converts an IPv4 address into a PeerID.
func FromAddrPort(addr netip.AddrPort) (PeerID, error) {
	ip := addr.Addr().Unmap()
	if !ip.Is4() {
		return PeerID{}, ErrNotIPv4
	}

	b := ip.As4()

	return PeerID{
		Host: binary.BigEndian.Uint32(b[:]),
		Port: addr.Port(),
	}, nil
}

// ParsePeerID parses a "host:port" string into a PeerID.
func ParsePeerID(s string) (PeerID, error) {
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		return PeerID{}, fmt.Errorf("failed to parse peer address (%s): %w", s, err)
	}

	return FromAddrPort(addr)
}

// MustParsePeerID is like ParsePeerID but panics on error. Intended for
// tests and static configuration.
func MustParsePeerID(s string) PeerID {
	id, err := ParsePeerID(s)
	if err != nil {
		panic(err)
	}

	return id
}

// AddrPort returns the network address of the peer.
func (id PeerID) AddrPort() netip.AddrPort {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id.Host)

	return netip.AddrPortFrom(netip.AddrFrom4(b), id.Port)
}

// Bytes returns the packed 6-byte representation of the peer: four bytes of
// host followed by two bytes of port, both big-endian. The layout is the same
// on every node, which makes it suitable for hashing.
func (id PeerID) Bytes() []byte {
	b := make([]byte, 6)
	binary.BigEndian.PutUint32(b[0:4], id.Host)
	binary.BigEndian.PutUint16(b[4:6], id.Port)

	return b
}

// IsZero reports whether the id is unset.
func (id PeerID) IsZero() bool {
	return id.Host == 0 && id.Port == 0
}

// Less orders peers by host, then by port.
func (id PeerID) Less(other PeerID) bool {
	if id.Host != other.Host {
		return id.Host < other.Host
	}

	return id.Port < other.Port
}

func (id PeerID) String() string {
	return id.AddrPort().String()
}
