package probe

import "encoding/binary"

// TinyPNG returns a minimal 1x1 PNG used by the multimodal input probe.
func TinyPNG() []byte {
	// Pre-built 1x1 opaque PNG: signature, IHDR, IDAT, IEND.
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53,
		0xde, 0x00, 0x00, 0x00, 0x0c, 0x49, 0x44, 0x41,
		0x54, 0x08, 0xd7, 0x63, 0xf8, 0xcf, 0xc0, 0x00,
		0x00, 0x00, 0x03, 0x00, 0x01, 0xcf, 0xa0, 0x2e,
		0xcd, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

// TinyWAV builds a minimal valid PCM WAV sample (8 kHz, mono, 8-bit,
// ~50 ms of silence) used by the transcription probe.
func TinyWAV() []byte {
	const (
		sampleRate = 8000
		samples    = 400
	)
	dataSize := uint32(samples)
	buf := make([]byte, 0, 44+samples)

	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}

	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, u32(36+dataSize)...)
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = append(buf, u32(16)...)         // PCM chunk size
	buf = append(buf, u16(1)...)          // PCM format
	buf = append(buf, u16(1)...)          // mono
	buf = append(buf, u32(sampleRate)...) // sample rate
	buf = append(buf, u32(sampleRate)...) // byte rate (8-bit mono)
	buf = append(buf, u16(1)...)          // block align
	buf = append(buf, u16(8)...)          // bits per sample
	buf = append(buf, []byte("data")...)
	buf = append(buf, u32(dataSize)...)
	for i := 0; i < samples; i++ {
		buf = append(buf, 0x80) // 8-bit silence midpoint
	}
	return buf
}
