package luxsession

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Typed accessors over the raw byte values. Integers are stored
// little-endian with a fixed width; a missing or malformed value yields the
// supplied default.

// GetString returns the UTF-8 string stored under key.
func (s *Session) GetString(key, def string) string {
	b := s.Get(key, nil)
	if len(b) == 0 || !utf8.Valid(b) {
		return def
	}
	return string(b)
}

// SetString stores v under key.
func (s *Session) SetString(key, v string) *Session {
	return s.Set(key, []byte(v))
}

// GetInt64 returns the int64 stored under key.
func (s *Session) GetInt64(key string, def int64) int64 {
	b := s.Get(key, nil)
	if len(b) != 8 {
		return def
	}
	return int64(binary.LittleEndian.Uint64(b))
}

// SetInt64 stores v under key.
func (s *Session) SetInt64(key string, v int64) *Session {
	return s.Set(key, binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

// GetUint64 returns the uint64 stored under key.
func (s *Session) GetUint64(key string, def uint64) uint64 {
	b := s.Get(key, nil)
	if len(b) != 8 {
		return def
	}
	return binary.LittleEndian.Uint64(b)
}

// SetUint64 stores v under key.
func (s *Session) SetUint64(key string, v uint64) *Session {
	return s.Set(key, binary.LittleEndian.AppendUint64(nil, v))
}

// GetFloat64 returns the float64 stored under key.
func (s *Session) GetFloat64(key string, def float64) float64 {
	b := s.Get(key, nil)
	if len(b) != 8 {
		return def
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// SetFloat64 stores v under key.
func (s *Session) SetFloat64(key string, v float64) *Session {
	return s.Set(key, binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
}

// GetBool returns the bool stored under key.
func (s *Session) GetBool(key string, def bool) bool {
	b := s.Get(key, nil)
	if len(b) != 1 {
		return def
	}
	return b[0] != 0
}

// SetBool stores v under key.
func (s *Session) SetBool(key string, v bool) *Session {
	if v {
		return s.Set(key, []byte{1})
	}
	return s.Set(key, []byte{0})
}

// GetTime returns the time stored under key, in UTC.
func (s *Session) GetTime(key string, def time.Time) time.Time {
	b := s.Get(key, nil)
	if len(b) != 8 {
		return def
	}
	return time.Unix(0, int64(binary.LittleEndian.Uint64(b))).UTC()
}

// SetTime stores v under key with nanosecond precision.
func (s *Session) SetTime(key string, v time.Time) *Session {
	return s.SetInt64(key, v.UnixNano())
}

// GetDuration returns the duration stored under key.
func (s *Session) GetDuration(key string, def time.Duration) time.Duration {
	return time.Duration(s.GetInt64(key, int64(def)))
}

// SetDuration stores v under key.
func (s *Session) SetDuration(key string, v time.Duration) *Session {
	return s.SetInt64(key, int64(v))
}

// GetUUID returns the UUID stored under key.
func (s *Session) GetUUID(key string, def uuid.UUID) uuid.UUID {
	id, err := uuid.FromBytes(s.Get(key, nil))
	if err != nil {
		return def
	}
	return id
}

// SetUUID stores the 16 raw bytes of v under key.
func (s *Session) SetUUID(key string, v uuid.UUID) *Session {
	return s.Set(key, v[:])
}

// GetJSON decodes the JSON document stored under key into v.
// It reports whether a value was present and decoded.
func (s *Session) GetJSON(key string, v any) bool {
	b := s.Get(key, nil)
	if len(b) == 0 {
		return false
	}
	return json.Unmarshal(b, v) == nil
}

// SetJSON stores v under key as a JSON document.
func (s *Session) SetJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Set(key, b)
	return nil
}
