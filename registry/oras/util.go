package oras

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/opencontainers/go-digest"
)

func digestOf(b []byte) digest.Digest {
	return digest.FromBytes(b)
}

func newReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
