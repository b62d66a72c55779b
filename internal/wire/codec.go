// Package wire implements the length-prefixed CBOR framing used by the
// request/response stream protocol (internal/network) to carry
// protocol.RequestMessage and protocol.ResponseMessage frames.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/lloom-network/lloom/internal/protocol"
)

// MaxFrameSize bounds a single decoded frame to guard against a malicious
// or buggy peer claiming an enormous length prefix.
const MaxFrameSize = 16 << 20 // 16 MiB

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Canonical encoding keeps map key order deterministic, which matters
	// for any future hash-of-wire-bytes tooling even though today's
	// SignedEnvelope signing goes over JSON, not this codec.
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: build cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{MaxArrayElements: 1 << 20, MaxMapPairs: 1 << 20}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: build cbor decode mode: %v", err))
	}
}

// WriteRequest CBOR-encodes msg and writes it to w as a 4-byte big-endian
// length prefix followed by the payload.
func WriteRequest(w io.Writer, msg protocol.RequestMessage) error {
	return writeFramed(w, msg)
}

// ReadRequest reads one length-prefixed CBOR frame from r and decodes it
// into a protocol.RequestMessage.
func ReadRequest(r io.Reader) (protocol.RequestMessage, error) {
	var msg protocol.RequestMessage
	err := readFramed(r, &msg)
	return msg, err
}

// WriteResponse CBOR-encodes msg and writes it to w with the same framing.
func WriteResponse(w io.Writer, msg protocol.ResponseMessage) error {
	return writeFramed(w, msg)
}

// ReadResponse reads one length-prefixed CBOR frame from r and decodes it
// into a protocol.ResponseMessage.
func ReadResponse(r io.Reader) (protocol.ResponseMessage, error) {
	var msg protocol.ResponseMessage
	err := readFramed(r, &msg)
	return msg, err
}

func writeFramed(w io.Writer, v any) error {
	body, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds max %d", len(body), MaxFrameSize)
	}

	bw := bufio.NewWriter(w)
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := bw.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := bw.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return bw.Flush()
}

func readFramed(r io.Reader, out any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameSize {
		return fmt.Errorf("wire: declared frame size %d exceeds max %d", n, MaxFrameSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("wire: read frame body: %w", err)
	}

	if err := decMode.Unmarshal(body, out); err != nil {
		return fmt.Errorf("wire: decode frame: %w", err)
	}
	return nil
}
