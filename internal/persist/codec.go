package persist

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/l1jgo/worldcore/internal/world"
)

const terrainBytes = world.TerrainSamples * world.TerrainSamples * 4

// Shared coders; EncodeAll and DecodeAll are safe for concurrent use.
var (
	terrainEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	terrainDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<20))
)

// EncodeTerrain packs a height field as zstd-compressed little-endian float32s.
func EncodeTerrain(t *world.Terrain) ([]byte, error) {
	if t == nil || len(t.Heights) != world.TerrainSamples*world.TerrainSamples {
		return nil, fmt.Errorf("terrain: want %d samples", world.TerrainSamples*world.TerrainSamples)
	}
	raw := make([]byte, terrainBytes)
	for i, h := range t.Heights {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(h))
	}
	return terrainEncoder.EncodeAll(raw, nil), nil
}

// DecodeTerrain reverses EncodeTerrain.
func DecodeTerrain(blob []byte) (*world.Terrain, error) {
	raw, err := terrainDecoder.DecodeAll(blob, make([]byte, 0, terrainBytes))
	if err != nil {
		return nil, fmt.Errorf("terrain: %w", err)
	}
	if len(raw) != terrainBytes {
		return nil, fmt.Errorf("terrain: %d bytes, want %d", len(raw), terrainBytes)
	}
	t := &world.Terrain{Heights: make([]float32, world.TerrainSamples*world.TerrainSamples)}
	for i := range t.Heights {
		t.Heights[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return t, nil
}
