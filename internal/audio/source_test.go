package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/dgnsrekt/singlingo/player"
)

// buildWAV assembles a minimal PCM WAV file.
func buildWAV(rate, ch, bits int, samples []int16) []byte {
	var data []byte
	if bits == 16 {
		data = make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
		}
	} else {
		data = make([]byte, len(samples))
		for i, s := range samples {
			data[i] = byte((s >> 8) + 128)
		}
	}

	blockAlign := ch * bits / 8
	out := make([]byte, 0, 44+len(data))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(data)))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, 1) // PCM
	out = binary.LittleEndian.AppendUint16(out, uint16(ch))
	out = binary.LittleEndian.AppendUint32(out, uint32(rate))
	out = binary.LittleEndian.AppendUint32(out, uint32(rate*blockAlign))
	out = binary.LittleEndian.AppendUint16(out, uint16(blockAlign))
	out = binary.LittleEndian.AppendUint16(out, uint16(bits))
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, data...)
	return out
}

func TestFactoryDecodesStereo16(t *testing.T) {
	// One second of native-format audio.
	samples := make([]int16, sampleRate*channels)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	src, err := Factory{}.NewSource(buildWAV(sampleRate, channels, 16, samples))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if d := src.Duration(); d < 0.999 || d > 1.001 {
		t.Fatalf("duration = %v, want ~1s", d)
	}
	decoded := src.(*Source)
	l, r := decoded.frame(10)
	if l != samples[20] || r != samples[21] {
		t.Fatalf("frame 10 = (%d,%d), want (%d,%d)", l, r, samples[20], samples[21])
	}
}

func TestFactoryUpmixesMonoAndResamples(t *testing.T) {
	// Half a second of mono at half the element rate.
	samples := make([]int16, sampleRate/2/2)
	for i := range samples {
		samples[i] = 1000
	}
	src, err := Factory{}.NewSource(buildWAV(sampleRate/2, 1, 16, samples))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if d := src.Duration(); d < 0.499 || d > 0.501 {
		t.Fatalf("duration = %v, want ~0.5s", d)
	}
	decoded := src.(*Source)
	l, r := decoded.frame(0)
	if l != 1000 || r != 1000 {
		t.Fatalf("mono frame not duplicated: (%d,%d)", l, r)
	}
}

func TestFactoryDecodes8Bit(t *testing.T) {
	src, err := Factory{}.NewSource(buildWAV(sampleRate, 1, 8, []int16{0, 8192, -8192, 0}))
	if err != nil {
		t.Fatal(err)
	}
	src.Close()
}

func TestFactoryRejectsUnsupported(t *testing.T) {
	cases := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"not riff", []byte("ID3.....mp3 data here, much longer than twelve")},
		{"riff no chunks", []byte("RIFF\x00\x00\x00\x00WAVE")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Factory{}.NewSource(tc.content)
			if !errors.Is(err, player.ErrUnsupportedFormat) {
				t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}

func TestClosedSourceReadsSilence(t *testing.T) {
	src, err := Factory{}.NewSource(buildWAV(sampleRate, 2, 16, []int16{500, 500, 500, 500}))
	if err != nil {
		t.Fatal(err)
	}
	decoded := src.(*Source)
	src.Close()
	if l, r := decoded.frame(0); l != 0 || r != 0 {
		t.Fatalf("closed source frame = (%d,%d), want silence", l, r)
	}
}

func TestRateReaderAdvancesByRate(t *testing.T) {
	src := &Source{pcm: make([]byte, 100*frameSize), frames: 100}
	r := &rateReader{src: src, rate: 2.0}
	buf := make([]byte, 10*frameSize)
	n, err := r.Read(buf)
	if err != nil || n != 10*frameSize {
		t.Fatalf("read = %d, %v", n, err)
	}
	// 10 frames consumed at 2x advance the cursor 20 source frames.
	if got := r.position(); got != 20.0/sampleRate {
		t.Fatalf("position = %v, want %v", got, 20.0/sampleRate)
	}
}

func TestRateReaderSeekAndEOF(t *testing.T) {
	src := &Source{pcm: make([]byte, 50*frameSize), frames: 50}
	r := &rateReader{src: src, rate: 1.0}

	r.seek(10) // past the end, clamps to the last frame
	if !r.exhausted() {
		t.Fatal("seek past end must exhaust the reader")
	}
	if _, err := r.Read(make([]byte, frameSize)); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}

	r.seek(0)
	if r.exhausted() {
		t.Fatal("rewind must clear exhaustion")
	}
}
