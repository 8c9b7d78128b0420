// Package publisher pkg/publisher/framing.go
package publisher

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/agrolink/fieldgate/pkg/models"
)

// frameHeaderSize is the length prefix: a big-endian u32 counting the
// JSON body bytes that follow it.
const frameHeaderSize = 4

// EncodeFrame serialises a frame to its wire form: 4-byte big-endian
// body length followed by the UTF-8 JSON body.
func EncodeFrame(frame models.Frame) ([]byte, error) {
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	buffer := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(buffer, uint32(len(body)))
	copy(buffer[frameHeaderSize:], body)

	return buffer, nil
}
