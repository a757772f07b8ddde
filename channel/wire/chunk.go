// Package wire implements the JSON and binary payload codecs for each
// message family the gateway translates.
package wire

import (
	"bytes"
	"crypto/sha256"
	"errors"
)

// HashSize is the width of a SHA-256 digest.
const HashSize = sha256.Size

// ZeroHash is the expected previous-hash value for chunk index 0.
var ZeroHash = [HashSize]byte{}

// Chunk is one binary file-transfer packet: [prev_hash(32B)][data(N)][hash(32B)],
// with SHA-256(data) == hash. Grounded on original_source/src/FileHandler.cpp
// and original_source/src/model/BinaryData.cpp.
type Chunk struct {
	PrevHash [HashSize]byte
	Data     []byte
	Hash     [HashSize]byte
}

// EncodeChunk builds the Chunk carrying data, chained to prevHash and
// stamped with data's SHA-256; Marshal serializes it to the wire's flat
// binary layout.
func EncodeChunk(prevHash [HashSize]byte, data []byte) Chunk {
	return Chunk{
		PrevHash: prevHash,
		Data:     data,
		Hash:     sha256.Sum256(data),
	}
}

// Marshal renders the chunk as the raw bytes sent over MQTT.
func (c Chunk) Marshal() []byte {
	buf := make([]byte, 0, HashSize+len(c.Data)+HashSize)
	buf = append(buf, c.PrevHash[:]...)
	buf = append(buf, c.Data...)
	buf = append(buf, c.Hash[:]...)
	return buf
}

// DecodeChunk parses a raw binary payload into a Chunk, verifying that
// the trailing hash matches SHA-256(data).
func DecodeChunk(payload []byte) (Chunk, error) {
	if len(payload) < 2*HashSize {
		return Chunk{}, errors.New("wire: chunk payload too short")
	}
	var c Chunk
	copy(c.PrevHash[:], payload[:HashSize])
	copy(c.Hash[:], payload[len(payload)-HashSize:])
	c.Data = append([]byte{}, payload[HashSize:len(payload)-HashSize]...)

	sum := sha256.Sum256(c.Data)
	if !bytes.Equal(sum[:], c.Hash[:]) {
		return Chunk{}, errors.New("wire: chunk hash does not match data")
	}
	return c, nil
}
