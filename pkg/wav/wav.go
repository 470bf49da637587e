// Package wav provides minimal RIFF/WAVE helpers for the kiosk audio path:
// header probing for upload validation, wrapping raw PCM in a WAV container,
// and synthesising silent placeholder clips for TTS degradation.
package wav

import (
	"encoding/binary"
	"time"
)

const (
	// HeaderSize is the size of the canonical 44-byte PCM WAV header.
	HeaderSize = 44

	// DefaultSampleRate is the sample rate used for generated audio.
	DefaultSampleRate = 16000

	bitsPerSample = 16
	numChannels   = 1
)

// IsWAV reports whether data starts with a RIFF/WAVE header. It checks the
// first 4 bytes for "RIFF" and bytes 8..12 for "WAVE"; data shorter than 12
// bytes is never a WAV file.
func IsWAV(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// FromPCM wraps raw 16-bit signed little-endian mono PCM samples in a WAV
// container at the given sample rate.
func FromPCM(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	out := make([]byte, HeaderSize+len(pcm))
	writeHeader(out, len(pcm), sampleRate)
	copy(out[HeaderSize:], pcm)
	return out
}

// Silent returns a silent 16 kHz mono WAV clip of the given duration.
// Durations are clamped to [0, 10s]; the clamp keeps degraded TTS responses
// bounded in size.
func Silent(d time.Duration) []byte {
	if d < 0 {
		d = 0
	}
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	samples := int(d.Seconds() * DefaultSampleRate)
	return FromPCM(make([]byte, samples*bitsPerSample/8), DefaultSampleRate)
}

// SilentForText returns a silent clip whose length approximates the speaking
// time of text, at roughly 6 characters per second, capped at 10 seconds.
func SilentForText(text string) []byte {
	chars := len([]rune(text))
	return Silent(time.Duration(chars) * time.Second / 6)
}

// writeHeader fills the first 44 bytes of buf with a PCM WAV header for a
// data chunk of dataLen bytes.
func writeHeader(buf []byte, dataLen, sampleRate int) {
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], numChannels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
}
