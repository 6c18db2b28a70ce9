package state

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"tokcache/internal/state/interfaces"
	"tokcache/internal/structures"
)

// maxSnapshotSize caps a decoded fetch state snapshot. A snapshot holds one
// clock per scope, so anything larger is a corrupt or foreign file.
const maxSnapshotSize = 64 << 20

// SnapshotCompressor is the zstd codec of fetch state snapshot files.
type SnapshotCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func (z *SnapshotCompressor) Compress(val []byte) ([]byte, error) {
	return z.encoder.EncodeAll(val, make([]byte, 0, len(val)/2)), nil
}

func (z *SnapshotCompressor) Decompress(val []byte) ([]byte, error) {
	out, err := z.decoder.DecodeAll(val, nil)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return out, nil
}

func (z *SnapshotCompressor) Close() {
	_ = z.encoder.Close()
	z.decoder.Close()
}

// NewZstdCompressor builds the snapshot codec at the configured
// persistence.compression level, zstd's default when unset.
func NewZstdCompressor(conf *structures.Config) (interfaces.CompressorInterface, error) {
	level := zstd.SpeedDefault
	if name := conf.Persistence.Compression; name != "" {
		ok, l := zstd.EncoderLevelFromString(name)
		if !ok {
			return nil, fmt.Errorf("unknown snapshot compression level %q", name)
		}
		level = l
	}
	return newSnapshotCompressor(level, maxSnapshotSize)
}

func newSnapshotCompressor(level zstd.EncoderLevel, maxSize uint64) (*SnapshotCompressor, error) {
	// Snapshots are written by one scheduler tick at a time.
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxSize))
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &SnapshotCompressor{encoder: encoder, decoder: decoder}, nil
}
