package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	FieldSignature          = "signature"
	FieldSignedFieldNames   = "signed_field_names"
	FieldUnsignedFieldNames = "unsigned_field_names"
	FieldSignedDateTime     = "signed_date_time"

	// SignedDateTimeLayout is the UTC timestamp format the gateway accepts.
	SignedDateTimeLayout = "2006-01-02T15:04:05Z"
)

// Signer computes and checks the HMAC-SHA256 signature shared with the gateway.
// The secret is fixed at construction.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns base64(HMAC-SHA256) over "name=value" pairs joined by "," in the
// order given by names. Every name must be present in fields.
func (s *Signer) Sign(fields map[string]string, names []string) (string, error) {
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		value, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("signed field %q missing", name)
		}
		pairs = append(pairs, name+"="+value)
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join(pairs, ",")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature using the payload's own signed_field_names
// ordering and compares it with the payload's signature field.
// All failures wrap ErrSignatureInvalid.
func (s *Signer) Verify(fields map[string]string) error {
	claimed := fields[FieldSignature]
	if claimed == "" {
		return fmt.Errorf("%w: no signature", ErrSignatureInvalid)
	}
	names := SplitNames(fields[FieldSignedFieldNames])
	if len(names) == 0 {
		return fmt.Errorf("%w: no signed field names", ErrSignatureInvalid)
	}

	expected, err := s.Sign(fields, names)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !hmac.Equal([]byte(expected), []byte(claimed)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Valid reports whether Verify succeeds.
func (s *Signer) Valid(fields map[string]string) bool {
	return s.Verify(fields) == nil
}

// SignFieldSet writes the control fields into fs and attaches the signature.
func (s *Signer) SignFieldSet(fs *FieldSet) error {
	fs.SetSigned(FieldUnsignedFieldNames, strings.Join(fs.UnsignedNames(), ","))
	// signed_field_names covers itself, so it is added before its value is known.
	fs.SetSigned(FieldSignedFieldNames, "")
	fs.SetSigned(FieldSignedFieldNames, strings.Join(fs.SignedNames(), ","))

	sig, err := s.Sign(fs.Values(), fs.SignedNames())
	if err != nil {
		return err
	}
	fs.signature = sig
	return nil
}

// SignedSubset returns only the fields named in signed_field_names. Values of
// any other posted field are not covered by the signature and must not be trusted.
func SignedSubset(fields map[string]string) map[string]string {
	names := SplitNames(fields[FieldSignedFieldNames])
	out := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

// SplitNames splits a comma-separated field name list, dropping blanks.
func SplitNames(list string) []string {
	if list == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	names := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}
