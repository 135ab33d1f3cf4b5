// Package reference encodes and decodes the opaque invoice payload that
// carries a purchase intent from invoice issuance through pre-checkout to
// settlement.
//
// The wire grammar is
//
//	sp1:<plan_id>:<requester_id>:<nonce>[:<mac>]
//
// where nonce is an "inv" TypeID and mac, present only when the codec holds a
// signing key, is the unpadded base64url encoding of the first 16 bytes of
// HMAC-SHA256 over everything before the last separator. The price is never
// part of the payload.
package reference

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/xraph/starpay/id"
	"github.com/xraph/starpay/plan"
)

// Version is the tag that prefixes every payload this codec produces.
const Version = "sp1"

// MaxLen is the largest payload the payment platform accepts.
const MaxLen = 128

const (
	sep    = ":"
	macLen = 16
)

// ErrMalformed is matched by every DecodeError.
var ErrMalformed = errors.New("starpay: malformed reference")

// Reference is the decoded form of an invoice payload.
type Reference struct {
	PlanID      string       `json:"plan_id"`
	RequesterID int64        `json:"requester_id"`
	Nonce       id.InvoiceID `json:"nonce"`
}

// DecodeError reports why a payload was rejected.
type DecodeError struct {
	Reason string
	Field  string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "starpay: malformed reference: " + e.Reason
	}
	return "starpay: malformed reference: " + e.Field + ": " + e.Reason
}

// Is makes errors.Is(err, ErrMalformed) hold for every DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrMalformed }

// Codec converts between Reference values and payload strings.
// The zero value is an unsigned codec.
type Codec struct {
	key []byte
}

// NewCodec returns a codec. A non-empty key enables payload signing; the same
// key must be configured on every replica that decodes the payloads.
func NewCodec(key []byte) *Codec {
	if len(key) == 0 {
		return &Codec{}
	}
	return &Codec{key: append([]byte(nil), key...)}
}

// Signed reports whether the codec appends and checks a mac.
func (c *Codec) Signed() bool { return len(c.key) > 0 }

// Encode builds the payload for a fresh invoice. planID must be a valid
// catalog id and requesterID positive; callers resolve the plan first.
func (c *Codec) Encode(planID string, requesterID int64) (string, id.InvoiceID) {
	nonce := id.NewInvoiceID()
	return c.Format(Reference{PlanID: planID, RequesterID: requesterID, Nonce: nonce}), nonce
}

// Format serializes an existing reference.
func (c *Codec) Format(r Reference) string {
	body := Version + sep + r.PlanID + sep + strconv.FormatInt(r.RequesterID, 10) + sep + r.Nonce.String()
	if !c.Signed() {
		return body
	}
	return body + sep + c.sign(body)
}

// Decode parses an untrusted payload. It returns a *DecodeError for anything
// Encode could not have produced and never panics.
func (c *Codec) Decode(payload string) (*Reference, error) {
	if payload == "" {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	if len(payload) > MaxLen {
		return nil, &DecodeError{Reason: "payload exceeds " + strconv.Itoa(MaxLen) + " bytes"}
	}

	want := 4
	if c.Signed() {
		want = 5
	}
	parts := strings.Split(payload, sep)
	if len(parts) != want {
		return nil, &DecodeError{Reason: "expected " + strconv.Itoa(want) + " fields, got " + strconv.Itoa(len(parts))}
	}
	for i, name := range []string{"version", "plan_id", "requester_id", "nonce", "mac"}[:want] {
		if parts[i] == "" {
			return nil, &DecodeError{Field: name, Reason: "empty"}
		}
	}

	if parts[0] != Version {
		return nil, &DecodeError{Field: "version", Reason: "unsupported version " + strconv.Quote(parts[0])}
	}

	if c.Signed() {
		body := payload[:strings.LastIndex(payload, sep)]
		if !hmac.Equal([]byte(parts[4]), []byte(c.sign(body))) {
			return nil, &DecodeError{Field: "mac", Reason: "signature mismatch"}
		}
	}

	if !plan.ValidID(parts[1]) {
		return nil, &DecodeError{Field: "plan_id", Reason: "invalid plan id"}
	}

	requester, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, &DecodeError{Field: "requester_id", Reason: "not a number"}
	}
	if requester <= 0 || strconv.FormatInt(requester, 10) != parts[2] {
		return nil, &DecodeError{Field: "requester_id", Reason: "not a canonical positive integer"}
	}

	nonce, err := id.ParseInvoiceID(parts[3])
	if err != nil || nonce.String() != parts[3] {
		return nil, &DecodeError{Field: "nonce", Reason: "not an invoice id"}
	}

	return &Reference{PlanID: parts[1], RequesterID: requester, Nonce: nonce}, nil
}

func (c *Codec) sign(body string) string {
	m := hmac.New(sha256.New, c.key)
	m.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil)[:macLen])
}
