// Package audio provides the PCM and WAV plumbing shared by the recording
// pipeline and the scoring service: 16-bit little-endian PCM helpers and a
// dependency-free RIFF/WAV codec.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM used
// throughout the pipeline.
const bitsPerSample = 16

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct
// inclusion in a multipart form upload.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV extracts the raw PCM payload and format from a RIFF/WAV
// container. Only uncompressed 16-bit PCM is supported; other encodings
// return an error. Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(wav []byte) (pcm []byte, format Format, err error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("audio: not a RIFF/WAVE container")
	}

	var haveFmt bool
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(wav) {
			return nil, Format{}, fmt.Errorf("audio: chunk %q overruns container", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, Format{}, errors.New("audio: fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(wav[body : body+2])
			if audioFormat != 1 {
				return nil, Format{}, fmt.Errorf("audio: unsupported WAV encoding %d (want PCM)", audioFormat)
			}
			format.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			if bits := binary.LittleEndian.Uint16(wav[body+14 : body+16]); bits != bitsPerSample {
				return nil, Format{}, fmt.Errorf("audio: unsupported bit depth %d (want %d)", bits, bitsPerSample)
			}
			haveFmt = true
		case "data":
			pcm = wav[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		if chunkSize%2 == 1 {
			chunkSize++
		}
		offset = body + chunkSize
	}

	if !haveFmt {
		return nil, Format{}, errors.New("audio: missing fmt chunk")
	}
	if pcm == nil {
		return nil, Format{}, errors.New("audio: missing data chunk")
	}
	return pcm, format, nil
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer, in PCM sample units (0-32767). Returns 0 for buffers shorter
// than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Samples reinterprets a 16-bit signed little-endian PCM buffer as int16
// samples. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return out
}

// DurationMS returns the duration of a PCM buffer in milliseconds for the
// given format. Returns 0 for invalid formats.
func DurationMS(pcm []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return len(pcm) * 1000 / bytesPerSec
}
