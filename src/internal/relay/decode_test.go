// FILE: wiretap/src/internal/relay/decode_test.go
package relay

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"wiretap/src/internal/core"
	"wiretap/src/internal/recordlog"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func marshalResponse(t *testing.T, r core.Response) string {
	t.Helper()
	out, err := json.Marshal(r)
	require.NoError(t, err)
	return string(out)
}

func TestDecode(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		result := Decode([]byte(`{"ok":true}`))
		require.IsType(t, core.JSONValue{}, result)
		assert.Equal(t, `{"ok":true}`, marshalResponse(t, result))
	})

	t.Run("PrettyJSONCompacted", func(t *testing.T) {
		result := Decode([]byte("{\n  \"a\": [1, 2],\n  \"b\": \"line\\nbreak\"\n}\n"))
		require.IsType(t, core.JSONValue{}, result)
		out := marshalResponse(t, result)
		assert.NotContains(t, out, "\n")
		assert.JSONEq(t, `{"a":[1,2],"b":"line\nbreak"}`, out)
	})

	t.Run("ScalarJSON", func(t *testing.T) {
		result := Decode([]byte(`42`))
		require.IsType(t, core.JSONValue{}, result)
		assert.Equal(t, `42`, marshalResponse(t, result))
	})

	t.Run("GzipJSON", func(t *testing.T) {
		result := Decode(gzipBytes(t, []byte(`{"id":"msg_1","content":[{"type":"text"}]}`)))
		require.IsType(t, core.JSONValue{}, result)
		assert.JSONEq(t, `{"id":"msg_1","content":[{"type":"text"}]}`, marshalResponse(t, result))
	})

	t.Run("Text", func(t *testing.T) {
		result := Decode([]byte("event: ping\ndata: {}\n\n"))
		assert.Equal(t, core.RawText{Text: "event: ping\ndata: {}\n\n"}, result)
		assert.JSONEq(t, `{"raw_response":"event: ping\ndata: {}\n\n"}`, marshalResponse(t, result))
	})

	t.Run("GzipText", func(t *testing.T) {
		result := Decode(gzipBytes(t, []byte("not json")))
		assert.Equal(t, core.RawText{Text: "not json"}, result)
	})

	t.Run("EmptyBody", func(t *testing.T) {
		assert.Equal(t, core.RawText{Text: ""}, Decode(nil))
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		body := []byte{0xff, 0xfe, 0x00, 0x41, 0xc3}
		result := Decode(body)
		assert.Equal(t, core.BinaryError{RawBytes: len(body)}, result)
		assert.JSONEq(t, `{"error":"Binary response received","raw_bytes":5}`, marshalResponse(t, result))
	})

	t.Run("GzipInvalidUTF8ReportsCompressedSize", func(t *testing.T) {
		body := gzipBytes(t, []byte{0xff, 0xff, 0xff, 0xff})
		assert.Equal(t, core.BinaryError{RawBytes: len(body)}, Decode(body))
	})

	t.Run("CorruptGzip", func(t *testing.T) {
		body := []byte{0x1f, 0x8b, 0x00, 0x01, 0x02}
		result := Decode(body)
		require.IsType(t, core.DecodeError{}, result)
		decodeErr := result.(core.DecodeError)
		assert.Equal(t, len(body), decodeErr.RawBytes)
		assert.NotEmpty(t, decodeErr.Message)
		assert.Contains(t, marshalResponse(t, result), `"error":"Decoding error: `)
	})

	t.Run("TruncatedGzip", func(t *testing.T) {
		full := gzipBytes(t, []byte(`{"ok":true}`))
		body := full[:len(full)-6]
		require.IsType(t, core.DecodeError{}, Decode(body))
	})

	t.Run("NonStandardJSONRecordedAsText", func(t *testing.T) {
		writer := recordlog.NewWriter(filepath.Join(t.TempDir(), "log.jsonl"), newTestLogger())
		defer writer.Close()

		bodies := []string{
			`NaN`,
			`{"v":inf}`,
			"{\"a\":\"line1\nline2\"}",
			`{"a":"\q"}`,
			`01`,
			`[1,]`,
		}
		for _, body := range bodies {
			result := Decode([]byte(body))
			assert.Equal(t, core.RawText{Text: body}, result, body)
			assert.NoError(t, writer.Append(core.RecordEntry{Request: "{}", Response: result}), body)
		}

		entries, _, err := recordlog.ReadAll(writer.Path())
		require.NoError(t, err)
		require.Len(t, entries, len(bodies))
		for i, body := range bodies {
			assert.JSONEq(t, marshalResponse(t, core.RawText{Text: body}), marshalResponse(t, entries[i].Response))
		}
	})
}
