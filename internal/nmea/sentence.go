// Package nmea frames, validates and parses NMEA 0183 RMC sentences.
//
// Only the fields needed for a position fix are decoded: UTC time, fix status,
// latitude and longitude. Received checksums are not verified.
package nmea

// DefaultSentenceSize is large enough for any NMEA 0183 sentence (82 bytes max)
// plus chatter from receivers that exceed the limit.
const DefaultSentenceSize = 256

// SentenceBuffer is a fixed-capacity byte buffer holding one candidate
// sentence, delimiters included. The backing array is allocated once.
type SentenceBuffer struct {
	buf []byte
	n   int
}

func NewSentenceBuffer(size int) *SentenceBuffer {
	if size <= 0 {
		size = DefaultSentenceSize
	}
	return &SentenceBuffer{buf: make([]byte, size)}
}

// Reset zero-fills the buffer and sets its length to 0.
func (s *SentenceBuffer) Reset() {
	clear(s.buf)
	s.n = 0
}

// Append stores b at the next position. It reports false when the buffer is
// already full.
func (s *SentenceBuffer) Append(b byte) bool {
	if s.n >= len(s.buf) {
		return false
	}
	s.buf[s.n] = b
	s.n++
	return true
}

func (s *SentenceBuffer) Len() int { return s.n }

func (s *SentenceBuffer) Cap() int { return len(s.buf) }

func (s *SentenceBuffer) Full() bool { return s.n == len(s.buf) }

// Bytes returns the written portion. The slice aliases the buffer and is only
// valid until the next Reset.
func (s *SentenceBuffer) Bytes() []byte { return s.buf[:s.n] }

// String returns a copy of the written portion.
func (s *SentenceBuffer) String() string { return string(s.buf[:s.n]) }
