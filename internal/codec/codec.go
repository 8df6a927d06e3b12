// Package codec implements the optional transport compression applied to
// large note bodies: gzip, then standard base64, signalled by a separate
// "compressed" flag. Compressed payloads are never persisted; they are
// reversed before encryption.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/klauspost/compress/gzip"
)

const (
	// CompressionThreshold is the byte length (not rune count) above which
	// MaybeCompress compresses.
	CompressionThreshold = 10 * 1024

	// MaxRawContentSize caps plaintext accepted from the transport, before or
	// after decompression. The codec itself only applies it through
	// DecompressCapped.
	MaxRawContentSize = 2 * 1000 * 1000
)

// MaybeCompress gzips and base64-encodes plaintext when it is longer than
// CompressionThreshold bytes. Otherwise plaintext is returned as is.
func MaybeCompress(plaintext string) (payload string, compressed bool, err error) {
	if len(plaintext) <= CompressionThreshold {
		return plaintext, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.WriteString(zw, plaintext); err != nil {
		return "", false, common.E(common.KindCodec, "codec.MaybeCompress", err)
	}
	if err := zw.Close(); err != nil {
		return "", false, common.E(common.KindCodec, "codec.MaybeCompress", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), true, nil
}

// DecompressIfMarked reverses MaybeCompress for payloads of any size.
// Uncompressed payloads pass through; bad base64 or a corrupt gzip stream is
// a Codec error.
func DecompressIfMarked(payload string, compressed bool) (string, error) {
	return decompress("codec.DecompressIfMarked", payload, compressed, -1)
}

// DecompressCapped is DecompressIfMarked for untrusted input: reading stops
// after limit+1 bytes of output, and output larger than limit is
// PayloadTooLarge. Uncompressed payloads are not checked.
func DecompressCapped(payload string, compressed bool, limit int) (string, error) {
	return decompress("codec.DecompressCapped", payload, compressed, limit)
}

func decompress(op, payload string, compressed bool, limit int) (string, error) {
	if !compressed {
		return payload, nil
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", common.E(common.KindCodec, op, fmt.Errorf("base64: %w", err))
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", common.E(common.KindCodec, op, fmt.Errorf("gzip header: %w", err))
	}
	defer zr.Close()

	var r io.Reader = zr
	if limit >= 0 {
		r = io.LimitReader(zr, int64(limit)+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", common.E(common.KindCodec, op, fmt.Errorf("gzip stream: %w", err))
	}
	if limit >= 0 && len(out) > limit {
		return "", common.E(common.KindPayloadTooLarge, op,
			fmt.Errorf("decompressed content exceeds %d bytes", limit))
	}

	return string(out), nil
}
