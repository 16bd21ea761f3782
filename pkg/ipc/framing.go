package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameBytes bounds a single frame. Session and conversation blobs are
// capped well below this by the datastore's thresholds.
const maxFrameBytes = 8 << 20

// writeFrame sends one length-prefixed UTF-8 frame. The 4-byte big-endian
// prefix gives the stream socket message orientation.
func writeFrame(w io.Writer, frame string) error {
	if len(frame) > maxFrameBytes {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(frame))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, frame)
	return err
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) (string, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameBytes {
		return "", fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
