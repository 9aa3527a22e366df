package dap

import (
	"bytes"
	"io"

	odoh "github.com/cloudflare/odoh-go"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func readAll(r io.Reader) ([]byte, error) { return io.ReadAll(r) }

func unmarshalODoHMessage(b []byte) (odoh.ObliviousDNSMessage, error) {
	return odoh.UnmarshalDNSMessage(b)
}
