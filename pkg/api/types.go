package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/allsmog/zkcp-go/pkg/crypto/group"
	"github.com/fxamacker/cbor/v2"
)

// Int is an arbitrary-precision integer on the wire.
// JSON carries it as a decimal string and also accepts a bare number or a
// 0x-prefixed hex string. CBOR carries it as an integer or bignum.
type Int struct {
	v *big.Int
}

// NewInt wraps v
func NewInt(v *big.Int) Int {
	return Int{v: v}
}

// Big returns the wrapped value, or nil when the field was absent
func (i Int) Big() *big.Int {
	return i.v
}

// String implements fmt.Stringer
func (i Int) String() string {
	if i.v == nil {
		return "<nil>"
	}
	return i.v.String()
}

// MarshalJSON implements json.Marshaler
func (i Int) MarshalJSON() ([]byte, error) {
	if i.v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(i.v.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		i.v = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := group.ParseInt(s)
		if err != nil {
			return err
		}
		i.v = v
		return nil
	}

	v, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return fmt.Errorf("malformed integer %s", data)
	}
	i.v = v
	return nil
}

// MarshalCBOR implements cbor.Marshaler
func (i Int) MarshalCBOR() ([]byte, error) {
	if i.v == nil {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(i.v)
}

// UnmarshalCBOR implements cbor.Unmarshaler
func (i *Int) UnmarshalCBOR(data []byte) error {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		i.v = nil
	case uint64:
		i.v = new(big.Int).SetUint64(v)
	case int64:
		i.v = big.NewInt(v)
	case big.Int:
		i.v = new(big.Int).Set(&v)
	case string:
		parsed, err := group.ParseInt(v)
		if err != nil {
			return err
		}
		i.v = parsed
	default:
		return errors.New("integer must be a CBOR integer, bignum or string")
	}
	return nil
}

// RegisterRequest carries a new credential
type RegisterRequest struct {
	Identity string `json:"identity" cbor:"identity"`
	V1       Int    `json:"v1" cbor:"v1"` // G^x mod p
	V2       Int    `json:"v2" cbor:"v2"` // H^x mod p
}

// RegisterResponse acknowledges a registration
type RegisterResponse struct {
	Status string `json:"status" cbor:"status"`
}

// ChallengeRequest carries a login commitment
type ChallengeRequest struct {
	Identity string `json:"identity" cbor:"identity"`
	R1       Int    `json:"r1" cbor:"r1"` // G^k mod p
	R2       Int    `json:"r2" cbor:"r2"` // H^k mod p
}

// ChallengeResponse carries the challenge to answer
type ChallengeResponse struct {
	ChallengeID string `json:"challenge_id" cbor:"challenge_id"`
	C           Int    `json:"c" cbor:"c"`
}

// VerifyRequest carries the prover's response
type VerifyRequest struct {
	ChallengeID string `json:"challenge_id" cbor:"challenge_id"`
	S           Int    `json:"s" cbor:"s"`
}

// VerifyResponse carries the session token
type VerifyResponse struct {
	SessionToken string `json:"session_token" cbor:"session_token"`
}

// ParamsResponse publishes the group parameters
type ParamsResponse struct {
	Name    string `json:"name" cbor:"name"`
	G       Int    `json:"g" cbor:"g"`
	H       Int    `json:"h" cbor:"h"`
	Modulus Int    `json:"modulus" cbor:"modulus"`
	Order   Int    `json:"order" cbor:"order"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error" cbor:"error"`
}
