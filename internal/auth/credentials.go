package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// Scheme is the Authorization scheme keyword accepted by ParseCredentials.
const Scheme = "Basic"

// maxSecretBytes is the longest secret bcrypt can tell apart.
const maxSecretBytes = 72

var validate = validator.New()

// ParseCredentials decodes a header of the form
//
//	Basic base64("<username> <role>:<secret>")
//
// The legacy "<username>:<role>:<secret>" payload is accepted as well. This
// is not RFC 7617 Basic auth; the role rides along with the username.
func ParseCredentials(header string) (Credentials, error) {
	keyword, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(keyword, Scheme) {
		return Credentials{}, fmt.Errorf("%w: expected %s scheme", ErrMalformedCredentials, Scheme)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: payload is not base64", ErrMalformedCredentials)
	}
	if !utf8.Valid(raw) {
		return Credentials{}, fmt.Errorf("%w: payload is not utf-8", ErrMalformedCredentials)
	}

	var creds Credentials
	segments := strings.Split(string(raw), ":")
	switch len(segments) {
	case 2:
		username, role, ok := strings.Cut(segments[0], " ")
		if !ok || username == "" || role == "" ||
			strings.ContainsFunc(username, unicode.IsSpace) || strings.ContainsFunc(role, unicode.IsSpace) {
			return Credentials{}, fmt.Errorf("%w: expected \"<username> <role>\" split by one space before the secret", ErrMalformedCredentials)
		}
		creds = Credentials{Username: username, Role: role, Secret: segments[1]}
	case 3:
		if strings.ContainsFunc(segments[0], unicode.IsSpace) || strings.ContainsFunc(segments[1], unicode.IsSpace) {
			return Credentials{}, fmt.Errorf("%w: whitespace in colon separated username or role", ErrMalformedCredentials)
		}
		creds = Credentials{Username: segments[0], Role: segments[1], Secret: segments[2]}
	default:
		return Credentials{}, fmt.Errorf("%w: expected 2 or 3 colon separated segments, got %d", ErrMalformedCredentials, len(segments))
	}

	creds.Username = norm.NFC.String(creds.Username)
	creds.Role = norm.NFC.String(creds.Role)

	if err := validate.Struct(creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMalformedCredentials, describeValidation(err))
	}
	if len(creds.Secret) > maxSecretBytes {
		return Credentials{}, fmt.Errorf("%w: secret longer than %d bytes", ErrMalformedCredentials, maxSecretBytes)
	}
	return creds, nil
}

// EncodeCredentials builds the header value ParseCredentials accepts.
func EncodeCredentials(username, role, secret string) string {
	payload := username + " " + role + ":" + secret
	return Scheme + " " + base64.StdEncoding.EncodeToString([]byte(payload))
}

// describeValidation names the failing fields without echoing their values,
// the secret among them.
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
