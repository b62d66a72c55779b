package wire

import "fmt"

// EncodeGossip CBOR-encodes v for publication on a gossipsub topic.
// Gossipsub already frames whole messages, so unlike the reqresp stream
// codec above this needs no length prefix.
func EncodeGossip(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode gossip message: %w", err)
	}
	return b, nil
}

// DecodeGossip decodes one gossipsub message payload into out.
func DecodeGossip(data []byte, out any) error {
	if err := decMode.Unmarshal(data, out); err != nil {
		return fmt.Errorf("wire: decode gossip message: %w", err)
	}
	return nil
}
