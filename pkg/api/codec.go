package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	// ContentTypeJSON is the default wire format
	ContentTypeJSON = "application/json"

	// ContentTypeCBOR selects the binary wire format
	ContentTypeCBOR = "application/cbor"
)

// ErrMalformedBody indicates a request body that could not be decoded
var ErrMalformedBody = errors.New("malformed request body")

// isCBOR reports whether the media type names CBOR
func isCBOR(header string) bool {
	if header == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == ContentTypeCBOR
}

// wantsCBOR picks the response format: the request's own format for bodies,
// the Accept header otherwise
func wantsCBOR(r *http.Request) bool {
	if isCBOR(r.Header.Get("Content-Type")) {
		return true
	}
	for _, accept := range strings.Split(r.Header.Get("Accept"), ",") {
		if isCBOR(strings.TrimSpace(accept)) {
			return true
		}
	}
	return false
}

// decodeRequest reads a single value of at most limit bytes from the body
// into v
func decodeRequest(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, limit)

	var dec interface{ Decode(any) error }
	if isCBOR(r.Header.Get("Content-Type")) {
		dec = cbor.NewDecoder(body)
	} else {
		dec = json.NewDecoder(body)
	}

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrMalformedBody)
		}
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	// The body must hold exactly one value
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after the request value", ErrMalformedBody)
	}
	return nil
}

// writeResponse encodes v with the status in the format the client asked for
func writeResponse(w http.ResponseWriter, r *http.Request, status int, v any) error {
	if wantsCBOR(r) {
		data, err := cbor.Marshal(v)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", ContentTypeCBOR)
		w.WriteHeader(status)
		_, err = w.Write(data)
		return err
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
