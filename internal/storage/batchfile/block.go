package batchfile

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// BlockType tags the payload of a framed block
type BlockType uint16

const (
	// BlockTypeEvent holds one plain serialized event
	BlockTypeEvent BlockType = 0x00
	// BlockTypeEncryptedEvent holds one sealed serialized event
	BlockTypeEncryptedEvent BlockType = 0x01
)

const (
	typeSize     = 2
	lengthSize   = 4
	checksumSize = 4
	headerSize   = typeSize + lengthSize
	// BlockOverhead is the framing cost added to every payload
	BlockOverhead = headerSize + checksumSize
)

var crcTable = crc32.MakeTable(crc32.IEEE)

// Block is one decoded frame
type Block struct {
	Type BlockType
	Data []byte
}

// EncodeBlock frames a payload as type(2) | length(4) | payload | crc32(4).
// The checksum covers type, length and payload.
func EncodeBlock(t BlockType, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload)+checksumSize)
	binary.BigEndian.PutUint16(buf[0:typeSize], uint16(t))
	binary.BigEndian.PutUint32(buf[typeSize:headerSize], uint32(len(payload)))
	copy(buf[headerSize:], payload)

	sum := crc32.Checksum(buf[:headerSize+len(payload)], crcTable)
	binary.BigEndian.PutUint32(buf[headerSize+len(payload):], sum)
	return buf
}

// DecodeBlocks decodes consecutive frames. On damage it returns every block
// before the damaged one together with a non-nil error.
func DecodeBlocks(data []byte) ([]Block, error) {
	var blocks []Block
	offset := 0

	for offset < len(data) {
		remaining := len(data) - offset
		if remaining < BlockOverhead {
			return blocks, fmt.Errorf("truncated block header at offset %d", offset)
		}

		t := BlockType(binary.BigEndian.Uint16(data[offset : offset+typeSize]))
		length := int(binary.BigEndian.Uint32(data[offset+typeSize : offset+headerSize]))
		if length < 0 || length > remaining-BlockOverhead {
			return blocks, fmt.Errorf("truncated block payload at offset %d: want %d bytes", offset, length)
		}

		end := offset + headerSize + length
		expected := binary.BigEndian.Uint32(data[end : end+checksumSize])
		if actual := crc32.Checksum(data[offset:end], crcTable); actual != expected {
			return blocks, fmt.Errorf("checksum mismatch at offset %d: expected %d, got %d", offset, expected, actual)
		}

		payload := make([]byte, length)
		copy(payload, data[offset+headerSize:end])
		blocks = append(blocks, Block{Type: t, Data: payload})

		offset = end + checksumSize
	}

	return blocks, nil
}
