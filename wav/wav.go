// Package wav builds standard uncompressed WAV containers from raw PCM data.
//
// The speech synthesis backend returns raw linear PCM (24 kHz, mono, 16-bit
// little-endian). Browsers and audio players need a container around it, so
// this package prepends the fixed 44-byte RIFF/WAVE header. Construction is
// deterministic and byte-exact; there is no compression and no metadata
// chunks.
package wav

import "encoding/binary"

const (
	// HeaderSize is the size of the RIFF/WAVE header in bytes.
	HeaderSize = 44

	// DefaultSampleRate is the sample rate of synthesized speech audio.
	DefaultSampleRate = 24000

	// DefaultChannels is the channel count of synthesized speech audio.
	DefaultChannels = 1

	// DefaultBitDepth is the bits per sample of synthesized speech audio.
	DefaultBitDepth = 16

	// fmtChunkSize is the "fmt " sub-chunk size for linear PCM.
	fmtChunkSize = 16

	// audioFormatPCM is the WAV format code for uncompressed linear PCM.
	audioFormatPCM = 1

	// riffSizeOffset accounts for the 8 header bytes not counted in the
	// RIFF chunk size field (the "RIFF" tag and the size field itself).
	riffSizeOffset = 36

	bitsPerByte = 8
)

// MIMEType is the content type served for encoded WAV resources.
const MIMEType = "audio/wav"

// Encode wraps raw PCM sample bytes in a WAV container with the given
// format parameters. The result is exactly HeaderSize+len(pcm) bytes.
// The payload length is passed through unvalidated; an empty payload
// yields a valid 44-byte container with a zero-length data chunk.
func Encode(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	dataSize := len(pcm)
	byteRate := sampleRate * channels * bitsPerSample / bitsPerByte
	blockAlign := channels * bitsPerSample / bitsPerByte

	out := make([]byte, HeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(riffSizeOffset+dataSize))
	copy(out[8:12], "WAVE")

	// "fmt " sub-chunk
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(out[20:22], audioFormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitsPerSample))

	// "data" sub-chunk
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[HeaderSize:], pcm)

	return out
}

// EncodeSpeech wraps PCM in a WAV container using the synthesis backend's
// fixed output format (24 kHz, mono, 16-bit).
func EncodeSpeech(pcm []byte) []byte {
	return Encode(pcm, DefaultSampleRate, DefaultChannels, DefaultBitDepth)
}
