// Package core provides the compression and hashing primitives used
// for ledger snapshots and server identity.
package core

import (
	"bytes"
	"encoding/hex"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"
)

var bufferPool = sync.Pool{New: func() interface{} { return new(bytes.Buffer) }}

// Compress returns src as an LZ4 frame.
func Compress(src []byte) []byte {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	zw := lz4.NewWriter(buf)
	zw.Write(src)
	zw.Close()

	// Return a strictly sized slice; the buffer goes back to the pool.
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// Decompress reverses Compress.
func Decompress(src []byte) []byte {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	zr := lz4.NewReader(bytes.NewReader(src))
	io.Copy(buf, zr)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// Hash returns the hex BLAKE3-256 digest of data.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
