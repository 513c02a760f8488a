package codec

import "github.com/toxaman/rusync/internal/chunker"

// metaChunkWidth is the on-wire size of one (size uint32, hash uint64) pair.
const metaChunkWidth = 4 + 8

// EncodeMeta serializes a chunk manifest into the meta payload format from
// §3: a single tag byte (1 = file, 0 = non-file) followed by N (size,
// hash) pairs, little-endian, with no padding between entries.
func EncodeMeta(isFile bool, chunks []chunker.FileChunk) ([]byte, error) {
	buf := make([]byte, 1+metaChunkWidth*len(chunks))
	w := NewWriter(buf)
	tag := uint8(0)
	if isFile {
		tag = 1
	}
	if err := w.WriteUint8(tag); err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if err := w.WriteUint32(c.Size); err != nil {
			return nil, err
		}
		if err := w.WriteUint64(c.Hash); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// DecodeMeta parses a meta payload into the file flag and its chunk
// manifest. A malformed payload (short trailing pair) fails with
// ErrOutOfRange, which aborts delta sync for that path — per §7 this is
// the only error the codec is expected to surface to a caller.
func DecodeMeta(data []byte) (isFile bool, chunks []chunker.FileChunk, err error) {
	r := NewReader(data)
	tag, err := r.ReadUint8()
	if err != nil {
		return false, nil, err
	}
	isFile = tag == 1
	for r.Remaining() > 0 {
		size, err := r.ReadUint32()
		if err != nil {
			return false, nil, err
		}
		hash, err := r.ReadUint64()
		if err != nil {
			return false, nil, err
		}
		chunks = append(chunks, chunker.FileChunk{Size: size, Hash: hash})
	}
	return isFile, chunks, nil
}
