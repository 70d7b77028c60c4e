// FILE: wiretap/src/internal/relay/decode.go
package relay

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"wiretap/src/internal/core"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"
)

var gzipMagic = []byte{0x1f, 0x8b}

var parserPool fastjson.ParserPool

// Decode turns an upstream body into its logged form. The stages run in
// order: gunzip when the body carries the gzip magic, UTF-8 validation, then
// a JSON parse. Decode always returns one of JSONValue, RawText, BinaryError
// or DecodeError and never panics.
func Decode(body []byte) (result core.Response) {
	defer func() {
		if r := recover(); r != nil {
			result = core.DecodeError{Message: fmt.Sprint(r), RawBytes: len(body)}
		}
	}()

	text := body
	if bytes.HasPrefix(body, gzipMagic) {
		decompressed, err := gunzip(body)
		if err != nil {
			return core.DecodeError{Message: err.Error(), RawBytes: len(body)}
		}
		text = decompressed
	}

	// raw_bytes always reports the size received from upstream
	if !utf8.Valid(text) {
		return core.BinaryError{RawBytes: len(body)}
	}

	// the parser alone accepts NaN, leading zeros and raw control characters
	if err := fastjson.ValidateBytes(text); err != nil {
		return core.RawText{Text: string(text)}
	}

	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(text)
	if err != nil {
		return core.RawText{Text: string(text)}
	}

	// MarshalTo emits the compact form, keeping each record on one line
	return core.JSONValue(v.MarshalTo(nil))
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(zr)
}
