// FILE: wiretap/src/internal/core/response.go
package core

import "encoding/json"

// BinaryResponseMessage is logged when the upstream body is not valid UTF-8
const BinaryResponseMessage = "Binary response received"

// Response is the logged form of an upstream reply.
// The set of implementations is closed: JSONValue, RawText, BinaryError,
// DecodeError and TransportError.
type Response interface {
	json.Marshaler
	isResponse()
}

// JSONValue holds an upstream body that parsed as JSON, in compact form
type JSONValue json.RawMessage

func (JSONValue) isResponse() {}

func (v JSONValue) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

// RawText holds a valid UTF-8 body that is not JSON
type RawText struct {
	Text string
}

func (RawText) isResponse() {}

func (r RawText) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RawResponse string `json:"raw_response"`
	}{r.Text})
}

// BinaryError records a body that could not be decoded as UTF-8
type BinaryError struct {
	RawBytes int
}

func (BinaryError) isResponse() {}

func (b BinaryError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error    string `json:"error"`
		RawBytes int    `json:"raw_bytes"`
	}{BinaryResponseMessage, b.RawBytes})
}

// DecodeError records any other failure while decoding the body
type DecodeError struct {
	Message  string
	RawBytes int
}

func (DecodeError) isResponse() {}

func (d DecodeError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error    string `json:"error"`
		RawBytes int    `json:"raw_bytes"`
	}{"Decoding error: " + d.Message, d.RawBytes})
}

// TransportError records an upstream exchange that produced no response at all
type TransportError struct {
	Message string
}

func (TransportError) isResponse() {}

func (t TransportError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
	}{t.Message})
}
