package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/mtoso/shadowline/pkg/audio"
)

// sine builds a deterministic 16-bit PCM buffer of n samples.
func pcmBuffer(n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(i%2000-1000)))
	}
	return buf
}

func TestEncodeDecodeWAV(t *testing.T) {
	t.Parallel()

	pcm := pcmBuffer(1600)
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("EncodeWAV length = %d, want %d", len(wav), 44+len(pcm))
	}

	decoded, format, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if format.SampleRate != 16000 || format.Channels != 1 {
		t.Errorf("format = %+v, want {16000 1}", format)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Error("decoded PCM differs from input")
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := [][]byte{
		nil,
		[]byte("not a wav file at all"),
		[]byte("RIFFxxxxWAVE"), // header only, no chunks
	}
	for _, in := range cases {
		if _, _, err := audio.DecodeWAV(in); err == nil {
			t.Errorf("DecodeWAV(%q): nil error, want failure", in)
		}
	}
}

func TestDecodeWAV_RejectsNonPCM(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(pcmBuffer(16), 16000, 1)
	// Flip the audio-format field to 3 (IEEE float).
	binary.LittleEndian.PutUint16(wav[20:22], 3)

	if _, _, err := audio.DecodeWAV(wav); err == nil {
		t.Fatal("DecodeWAV(float wav): nil error, want failure")
	}
}

func TestRMS_SilenceIsZero(t *testing.T) {
	t.Parallel()

	if got := audio.RMS(make([]byte, 320)); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := audio.RMS(pcmBuffer(1600)); got == 0 {
		t.Error("RMS(signal) = 0, want > 0")
	}
}

func TestDurationMS(t *testing.T) {
	t.Parallel()

	// 16 kHz mono 16-bit → 32 bytes per millisecond.
	if got := audio.DurationMS(make([]byte, 3200), 16000, 1); got != 100 {
		t.Errorf("DurationMS = %d, want 100", got)
	}
	if got := audio.DurationMS(make([]byte, 3200), 0, 1); got != 0 {
		t.Errorf("DurationMS with zero rate = %d, want 0", got)
	}
}

func TestSamples(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80, 0x0A}
	got := audio.Samples(pcm)
	want := []int16{1, -1, -32768}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}
