// Package validation checks and normalizes the onboarding form fields.
// Every function is pure; messages are the fixed pt-BR strings shown in the UI.
package validation

import (
	"strings"
	"unicode"
)

const (
	MsgNameRequired  = "Nome é obrigatório"
	MsgPhoneRequired = "Telefone é obrigatório"
	MsgPhoneLength   = "Telefone deve ter 10 ou 11 dígitos"
	MsgCPFRequired   = "CPF é obrigatório"
	MsgCPFInvalid    = "CPF inválido"
)

const (
	PhoneMaxDigits = 11
	CPFDigits      = 11
)

// Result is the outcome of validating one field.
type Result struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

func ok() Result             { return Result{IsValid: true} }
func fail(msg string) Result { return Result{Error: msg} }

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// SanitizeName trims surrounding whitespace and collapses inner runs of spaces.
func SanitizeName(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// SanitizePhone keeps digits only, at most PhoneMaxDigits of them.
func SanitizePhone(s string) string {
	return truncate(Digits(s), PhoneMaxDigits)
}

// SanitizeCPF keeps digits only, at most CPFDigits of them.
func SanitizeCPF(s string) string {
	return truncate(Digits(s), CPFDigits)
}

func ValidateName(s string) Result {
	if strings.TrimSpace(s) == "" {
		return fail(MsgNameRequired)
	}
	return ok()
}

// ValidatePhone accepts 10 digits (landline with area code) or 11 (mobile).
func ValidatePhone(s string) Result {
	d := Digits(s)
	switch len(d) {
	case 0:
		return fail(MsgPhoneRequired)
	case 10, 11:
		return ok()
	}
	return fail(MsgPhoneLength)
}

func ValidateCPF(s string) Result {
	d := Digits(s)
	if d == "" {
		return fail(MsgCPFRequired)
	}
	if !IsValidCPF(d) {
		return fail(MsgCPFInvalid)
	}
	return ok()
}

// IsValidCPF reports whether s (digits only) is an 11-digit CPF whose two
// trailing check digits match the mod-11 computation over the preceding ones.
func IsValidCPF(s string) bool {
	if len(s) != CPFDigits {
		return false
	}
	// 000.000.000-00, 111.111.111-11, ... pass the checksum but are placeholders.
	if strings.Count(s, s[:1]) == CPFDigits {
		return false
	}
	want, ok := CheckDigits(s[:9])
	return ok && s[9:] == want
}

func checkDigit(d []int) int {
	sum := 0
	weight := len(d) + 1
	for _, n := range d {
		sum += n * weight
		weight--
	}
	r := (sum * 10) % 11
	if r == 10 {
		return 0
	}
	return r
}

// CheckDigits computes the two verification digits for a 9-digit base.
func CheckDigits(base string) (string, bool) {
	if len(base) != 9 {
		return "", false
	}
	d := make([]int, 0, 10)
	for i := 0; i < 9; i++ {
		c := base[i]
		if c < '0' || c > '9' {
			return "", false
		}
		d = append(d, int(c-'0'))
	}
	first := checkDigit(d)
	second := checkDigit(append(d, first))
	return string(rune('0'+first)) + string(rune('0'+second)), true
}

// FormatPhone renders (11) 98765-4321 or (11) 3456-7890; other lengths are returned as digits.
func FormatPhone(s string) string {
	d := Digits(s)
	switch len(d) {
	case 10:
		return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:]
	case 11:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	}
	return d
}

// FormatCPF renders 529.982.247-25; other lengths are returned as digits.
func FormatCPF(s string) string {
	d := Digits(s)
	if len(d) != CPFDigits {
		return d
	}
	return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:]
}
