package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dgnsrekt/singlingo/player"
)

// Element output format. Every decoded source is converted to this, so
// one device context serves all songs.
const (
	sampleRate     = 44100
	channels       = 2
	bytesPerSample = 2
	frameSize      = channels * bytesPerSample
)

// Source is decoded PCM at the element format. It implements
// player.Source.
type Source struct {
	mu     sync.Mutex
	pcm    []byte
	frames int
	closed bool
}

// Duration returns the source length in seconds.
func (s *Source) Duration() float64 {
	return float64(s.frames) / sampleRate
}

// Close releases the decoded PCM.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pcm = nil
	return nil
}

// frame returns the left and right samples at position i, or silence past
// the end or after close.
func (s *Source) frame(i int) (int16, int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || i < 0 || i >= s.frames {
		return 0, 0
	}
	off := i * frameSize
	l := int16(binary.LittleEndian.Uint16(s.pcm[off:]))
	r := int16(binary.LittleEndian.Uint16(s.pcm[off+2:]))
	return l, r
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Factory decodes audio content into Sources. It implements
// player.SourceFactory. Only PCM WAV is understood; anything else gets
// player.ErrUnsupportedFormat so the session can attempt recovery.
type Factory struct{}

// NewSource decodes content into a Source at the element format.
func (Factory) NewSource(content []byte) (player.Source, error) {
	pcm, frames, err := decodeWAV(content)
	if err != nil {
		return nil, err
	}
	return &Source{pcm: pcm, frames: frames}, nil
}

// decodeWAV parses a RIFF/WAVE container and converts its PCM data to
// 44.1kHz stereo signed 16-bit.
func decodeWAV(content []byte) ([]byte, int, error) {
	if len(content) < 12 || string(content[0:4]) != "RIFF" || string(content[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: not a RIFF/WAVE container", player.ErrUnsupportedFormat)
	}

	var (
		srcRate     int
		srcChannels int
		srcBits     int
		data        []byte
		haveFmt     bool
	)
	for off := 12; off+8 <= len(content); {
		id := string(content[off : off+4])
		size := int(binary.LittleEndian.Uint32(content[off+4 : off+8]))
		body := off + 8
		if body+size > len(content) {
			size = len(content) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: truncated fmt chunk", player.ErrUnsupportedFormat)
			}
			format := binary.LittleEndian.Uint16(content[body:])
			if format != 1 {
				return nil, 0, fmt.Errorf("%w: wav format %d, want PCM", player.ErrUnsupportedFormat, format)
			}
			srcChannels = int(binary.LittleEndian.Uint16(content[body+2:]))
			srcRate = int(binary.LittleEndian.Uint32(content[body+4:]))
			srcBits = int(binary.LittleEndian.Uint16(content[body+14:]))
			haveFmt = true
		case "data":
			data = content[body : body+size]
		}
		// Chunks are word aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt || data == nil {
		return nil, 0, fmt.Errorf("%w: missing fmt or data chunk", player.ErrUnsupportedFormat)
	}
	if srcChannels < 1 || srcChannels > 2 || (srcBits != 8 && srcBits != 16) || srcRate <= 0 {
		return nil, 0, fmt.Errorf("%w: %dch %dbit %dHz", player.ErrUnsupportedFormat, srcChannels, srcBits, srcRate)
	}

	samples := toSamples(data, srcBits)
	srcFrames := len(samples) / srcChannels
	if srcFrames == 0 {
		return nil, 0, fmt.Errorf("%w: empty data chunk", player.ErrUnsupportedFormat)
	}

	outFrames := int(int64(srcFrames) * sampleRate / int64(srcRate))
	out := make([]byte, outFrames*frameSize)
	for i := 0; i < outFrames; i++ {
		// Nearest-frame resample.
		src := int(int64(i) * int64(srcRate) / sampleRate)
		if src >= srcFrames {
			src = srcFrames - 1
		}
		var l, r int16
		if srcChannels == 1 {
			l = samples[src]
			r = l
		} else {
			l = samples[src*2]
			r = samples[src*2+1]
		}
		binary.LittleEndian.PutUint16(out[i*frameSize:], uint16(l))
		binary.LittleEndian.PutUint16(out[i*frameSize+2:], uint16(r))
	}
	return out, outFrames, nil
}

// toSamples widens the raw data chunk to signed 16-bit samples.
func toSamples(data []byte, bits int) []int16 {
	if bits == 16 {
		n := len(data) / 2
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out
	}
	// 8-bit WAV is unsigned, centered on 128.
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = (int16(b) - 128) << 8
	}
	return out
}
