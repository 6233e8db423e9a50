// Package compression wraps zstd for the on-disk blob cache. Blobs are
// keyed by the hash of their uncompressed content, so compression is a
// storage detail that never leaks into addressing. Whether a payload was
// compressed is the caller's bookkeeping: sniffing the bytes would
// misread a user blob that happens to be a zstd frame itself.
package compression

import (
	"github.com/klauspost/compress/zstd"
)

// minCompressSize skips payloads too small to win anything back.
const minCompressSize = 128

// Levels accepted by NewCompressor.
const (
	LevelFastest = 1
	LevelDefault = 2
	LevelBetter  = 3
)

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCompressor builds a compressor. The decoder is always available so
// a store opened without compression can still read objects a previous
// instance wrote compressed.
func NewCompressor(level int, enabled bool) (*Compressor, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	c := &Compressor{decoder: decoder}
	if !enabled {
		return c, nil
	}

	encoderLevel := zstd.SpeedDefault
	switch level {
	case LevelFastest:
		encoderLevel = zstd.SpeedFastest
	case LevelBetter:
		encoderLevel = zstd.SpeedBetterCompression
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		decoder.Close()
		return nil, err
	}

	c.encoder = encoder
	c.enabled = true
	return c, nil
}

// Compress returns the payload to store and whether zstd was applied.
// Incompressible or tiny payloads come back unchanged.
func (c *Compressor) Compress(data []byte) ([]byte, bool) {
	if !c.enabled || len(data) < minCompressSize {
		return data, false
	}
	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return data, false
	}
	return compressed, true
}

// Decompress reverses Compress for a payload that was stored compressed.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	return c.decoder.DecodeAll(data, nil)
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
