// Package chunker splits file content into size-bounded chunks and hashes
// each one, implementing C3 of the design (variable chunk size by file
// size, fixed within one file).
package chunker

import (
	"io"

	"github.com/toxaman/rusync/internal/xxh"
)

// FileChunk is one byte-range descriptor for delta sync: the number of
// bytes in the chunk and the XXH64 hash of those bytes.
type FileChunk struct {
	Size uint32
	Hash uint64
}

// Size tiers from §4.3: chunk size approximates sqrt(file size), bounding
// manifest size to roughly 10k-30k chunks for any file.
const (
	smallFileLimit  = 1_000_000
	mediumFileLimit = 1_000_000_000

	smallChunkSize  = 1_000
	mediumChunkSize = 31_622
	largeChunkSize  = 100_000
)

// Size returns the chunk size to use for a file of the given length.
func Size(fileSize int64) int {
	switch {
	case fileSize < smallFileLimit:
		return smallChunkSize
	case fileSize < mediumFileLimit:
		return mediumChunkSize
	default:
		return largeChunkSize
	}
}

// Chunk reads r sequentially in Size(fileSize)-byte blocks and returns a
// FileChunk per non-empty read. The final short read (if any) becomes its
// own chunk. An empty file yields a nil slice.
func Chunk(r io.Reader, fileSize int64) ([]FileChunk, error) {
	chunkSize := Size(fileSize)
	buf := make([]byte, chunkSize)
	var chunks []FileChunk
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunks = append(chunks, FileChunk{
				Size: uint32(n),
				Hash: xxh.Sum64(buf[:n]),
			})
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
	}
}
