package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion is the 4-byte big-endian version prefix every frame
// carries, per spec §4.2/§6. A session whose peer sends a mismatched
// version is aborted.
const ProtocolVersion uint32 = 1

// maxPacketSize bounds a single frame to guard against a corrupt or
// hostile length prefix causing an unbounded allocation.
const maxPacketSize = 64 << 20 // 64 MiB

// writeFrame writes one length-prefixed frame: 4-byte version, 4-byte
// big-endian length, then the packet bytes.
func writeFrame(w io.Writer, packet []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], ProtocolVersion)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(packet)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if _, err := w.Write(packet); err != nil {
		return fmt.Errorf("transport: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame and returns its packet bytes.
// A version mismatch is reported as a distinct error so the caller can
// abort the session with a specific log message, per spec §4.2.
func readFrame(r io.Reader) ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	version := binary.BigEndian.Uint32(header[0:4])
	if version != ProtocolVersion {
		return nil, &VersionMismatchError{Got: version, Want: ProtocolVersion}
	}

	length := binary.BigEndian.Uint32(header[4:8])
	if length > maxPacketSize {
		return nil, fmt.Errorf("transport: frame length %d exceeds maximum %d", length, maxPacketSize)
	}

	packet := make([]byte, length)
	if _, err := io.ReadFull(r, packet); err != nil {
		return nil, fmt.Errorf("transport: read frame body: %w", err)
	}
	return packet, nil
}

// VersionMismatchError reports an incoming frame whose protocol version
// does not match ours.
type VersionMismatchError struct {
	Got, Want uint32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("transport: protocol version mismatch: got %d, want %d", e.Got, e.Want)
}
