////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package codec encodes and decodes message bodies for transmission over the
// wire. Bodies are UTF-8 text, optionally wrapped in a minimal zlib container,
// and then base64 encoded.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/adler32"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// UndecodablePlaceholder is the text substituted for a body that cannot be
// decoded.
const UndecodablePlaceholder = "[unable to decode message]"

// MaxTextSize is the largest number of bytes a compressed body may inflate
// to. Larger bodies cannot be decoded.
const MaxTextSize = 1 << 20

// zlib container framing.
const (
	zlibCMF      byte = 0x78
	zlibFLG      byte = 0x9C
	zlibHeadLen       = 2
	adlerLen          = 4
	minZlibBytes      = zlibHeadLen + adlerLen
)

// Encode UTF-8 encodes the text and base64 encodes the result. If compress is
// set, the bytes are DEFLATE compressed and placed in a zlib container before
// being base64 encoded.
func Encode(text string, compress bool) string {
	data := []byte(text)
	if !compress {
		return base64.StdEncoding.EncodeToString(data)
	}

	compressed, err := deflate(data)
	if err != nil {
		// Writing to a bytes.Buffer cannot fail; fall back to the raw bytes,
		// which Decode accepts all the same.
		jww.ERROR.Printf("[CODEC] Failed to compress %d bytes, sending "+
			"uncompressed: %+v", len(data), err)
		return base64.StdEncoding.EncodeToString(data)
	}

	return base64.StdEncoding.EncodeToString(compressed)
}

// Decode reverses Encode. It accepts both compressed and uncompressed
// payloads. Returns false if the payload is not valid base64, inflates past
// MaxTextSize or does not decode to valid UTF-8 text. Decode never panics.
func Decode(wire string) (string, bool) {
	data, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		jww.DEBUG.Printf("[CODEC] Payload is not base64: %v", err)
		return "", false
	}

	// Uncompressed payloads are plain UTF-8
	if utf8.Valid(data) {
		return string(data), true
	}

	if len(data) < zlibHeadLen || data[0] != zlibCMF {
		return "", false
	}

	inflated, err := inflate(data[zlibHeadLen:])
	if err != nil {
		jww.DEBUG.Printf("[CODEC] Failed to inflate payload: %v", err)
		return "", false
	}

	if !utf8.Valid(inflated) {
		return "", false
	}

	return string(inflated), true
}

// DecodeOr decodes the wire string and returns placeholder if it cannot be
// decoded.
func DecodeOr(wire, placeholder string) string {
	if text, ok := Decode(wire); ok {
		return text
	}
	return placeholder
}

// deflate compresses data into a zlib container: a two byte header, the raw
// DEFLATE stream and the big-endian Adler-32 of the uncompressed data.
func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) + minZlibBytes)
	buf.WriteByte(zlibCMF)
	buf.WriteByte(zlibFLG)

	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err = fw.Write(data); err != nil {
		return nil, err
	}
	if err = fw.Close(); err != nil {
		return nil, err
	}

	var checksum [adlerLen]byte
	binary.BigEndian.PutUint32(checksum[:], adler32.Checksum(data))
	buf.Write(checksum[:])

	return buf.Bytes(), nil
}

// inflate decompresses a raw DEFLATE stream. Any bytes trailing the end of
// the stream (the Adler-32 checksum) are ignored. Returns an error if the
// stream inflates to more than MaxTextSize bytes.
func inflate(stream []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(stream))
	defer func() { _ = fr.Close() }()

	data, err := io.ReadAll(io.LimitReader(fr, MaxTextSize+1))
	if err != nil {
		return nil, err
	} else if len(data) > MaxTextSize {
		return nil, errors.Errorf(
			"payload inflates to more than %d bytes", MaxTextSize)
	}
	return data, nil
}
