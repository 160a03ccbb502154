package luxsession

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// blobVersion is the only session blob layout this package reads and writes:
//
//	[version:int16][count:int32] { [valueLength:int32][key:uvarint length + UTF-8][value] }*
//
// All integers are little-endian.
const blobVersion int16 = 1

// envelopeHeaderSize is the last access prefix used by key/value swappers.
const envelopeHeaderSize = 8

// encodeSession appends the blob for s to buf. maxBytes > 0 limits the
// encoded size.
func encodeSession(buf *bytes.Buffer, s *Session, maxBytes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.values) > math.MaxInt32 {
		return fmt.Errorf("%w: %d keys", ErrSessionTooLarge, len(s.values))
	}

	var scratch [binary.MaxVarintLen64]byte
	start := buf.Len()

	binary.LittleEndian.PutUint16(scratch[:2], uint16(blobVersion))
	buf.Write(scratch[:2])
	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(s.values)))
	buf.Write(scratch[:4])

	for key, value := range s.values {
		if len(value) > math.MaxInt32 {
			return fmt.Errorf("%w: value of %q", ErrSessionTooLarge, key)
		}
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(value)))
		buf.Write(scratch[:4])

		n := binary.PutUvarint(scratch[:], uint64(len(key)))
		buf.Write(scratch[:n])
		buf.WriteString(key)
		buf.Write(value)

		if maxBytes > 0 && buf.Len()-start > maxBytes {
			return ErrSessionTooLarge
		}
	}
	return nil
}

// decodeSession restores the values of a blob into s. Any failure abandons s
// and returns an error wrapping ErrCorruptSession.
func decodeSession(data []byte, s *Session) error {
	if err := readSession(data, s); err != nil {
		s.Abandon()
		return fmt.Errorf("%w: %w", ErrCorruptSession, err)
	}
	return nil
}

func readSession(data []byte, s *Session) error {
	r := getReader(data)
	defer putReader(r)

	var version int16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version != blobVersion {
		return fmt.Errorf("unsupported version %d", version)
	}

	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	// Each entry takes at least five bytes.
	if count < 0 || int64(count)*5 > int64(r.Len()) {
		return fmt.Errorf("invalid entry count %d", count)
	}

	for i := int32(0); i < count; i++ {
		var length int32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return fmt.Errorf("read value length: %w", err)
		}
		if length < 0 {
			return fmt.Errorf("negative value length %d", length)
		}

		keyLen, err := binary.ReadUvarint(r)
		if err != nil {
			return fmt.Errorf("read key length: %w", err)
		}
		if keyLen > uint64(r.Len()) {
			return fmt.Errorf("key length %d exceeds input", keyLen)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return fmt.Errorf("read key: %w", err)
		}

		if int64(length) > int64(r.Len()) {
			return fmt.Errorf("value length %d exceeds input", length)
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		s.Set(string(key), value)
	}
	return nil
}

// encodeEnvelope writes the last access time of s followed by its blob.
func encodeEnvelope(buf *bytes.Buffer, s *Session, maxBytes int) error {
	var stamp [envelopeHeaderSize]byte
	binary.LittleEndian.PutUint64(stamp[:], uint64(s.LastAccess().UnixNano()))
	buf.Write(stamp[:])
	if maxBytes > 0 {
		maxBytes += envelopeHeaderSize
	}
	return encodeSession(buf, s, maxBytes)
}

// decodeEnvelope splits an envelope into its last access time and blob.
func decodeEnvelope(data []byte) (time.Time, []byte, error) {
	if len(data) < envelopeHeaderSize {
		return time.Time{}, nil, fmt.Errorf("%w: %w", ErrCorruptSession, errors.New("short envelope"))
	}
	nanos := int64(binary.LittleEndian.Uint64(data[:envelopeHeaderSize]))
	return time.Unix(0, nanos), data[envelopeHeaderSize:], nil
}
