// Package validate holds the field rules for account payloads. Each rule
// returns the client-facing message of the first violated constraint, or "".
package validate

import (
	"net/http"
	"net/mail"
	"unicode"
	"unicode/utf8"
)

const (
	MsgUsernameNull    = "Username cannot be null"
	MsgUsernameSize    = "Must have min 4 and max 32 characters"
	MsgEmailNull       = "E-mail cannot be null"
	MsgEmailInvalid    = "E-mail is not valid"
	MsgEmailInUse      = "E-mail in use"
	MsgUsernameInUse   = "Username in use"
	MsgPasswordNull    = "Password cannot be null"
	MsgPasswordSize    = "Password must be at least 6 characters"
	MsgPasswordPattern = "Password must have at least 1 uppercase, 1 lowercase letter and 1 number"
	MsgImageSize       = "Your profile image cannot be bigger than 2MB"
	MsgImageType       = "Only JPEG or PNG files are allowed"
	MsgImageEncoding   = "Profile image must be base64 encoded"
	MaxImageBytes      = 2 * 1024 * 1024
	minUsernameRunes   = 4
	maxUsernameRunes   = 32
	minPasswordRunes   = 6
)

// Errors maps a field name to its validation message.
type Errors map[string]string

// Add records msg for field unless msg is empty or the field already failed.
func (e Errors) Add(field, msg string) {
	if msg == "" {
		return
	}
	if _, ok := e[field]; ok {
		return
	}
	e[field] = msg
}

func Username(s string) string {
	if s == "" {
		return MsgUsernameNull
	}
	if n := utf8.RuneCountInString(s); n < minUsernameRunes || n > maxUsernameRunes {
		return MsgUsernameSize
	}
	return ""
}

func Email(s string) string {
	if s == "" {
		return MsgEmailNull
	}
	if !IsEmail(s) {
		return MsgEmailInvalid
	}
	return ""
}

// IsEmail accepts a bare addr-spec such as user@example.com.
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && addr.Name == ""
}

func Password(s string) string {
	if s == "" {
		return MsgPasswordNull
	}
	if utf8.RuneCountInString(s) < minPasswordRunes {
		return MsgPasswordSize
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return MsgPasswordPattern
	}
	return ""
}

// Image checks decoded profile image bytes and returns the sniffed
// content type alongside any violation.
func Image(data []byte) (string, string) {
	if len(data) > MaxImageBytes {
		return "", MsgImageSize
	}
	ct := http.DetectContentType(data)
	switch ct {
	case "image/png", "image/jpeg":
		return ct, ""
	}
	return ct, MsgImageType
}
