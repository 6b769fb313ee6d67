// Package document validates, formats and masks Brazilian customer documents
// (CPF) and phone numbers.
package document

import (
	"fmt"
	"strings"
)

// CPFLength is the number of digits in a CPF.
const CPFLength = 11

// Digits strips every non-digit character.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// allSame reports whether every digit of s is identical.
func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// checkDigit computes a CPF check digit over digits with weights
// starting at startWeight and decreasing by one.
func checkDigit(digits string, startWeight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (startWeight - i)
	}
	rest := (sum * 10) % 11
	if rest == 10 || rest == 11 {
		rest = 0
	}
	return rest
}

// ValidateCPF reports whether s, after stripping non-digits, is a CPF with
// 11 digits, not all identical, and two matching check digits.
func ValidateCPF(s string) bool {
	cpf := Digits(s)
	if len(cpf) != CPFLength || allSame(cpf) {
		return false
	}
	if checkDigit(cpf[:9], 10) != int(cpf[9]-'0') {
		return false
	}
	return checkDigit(cpf[:10], 11) == int(cpf[10]-'0')
}

// CPFCheckDigits returns both check digits for the first nine digits of a CPF.
func CPFCheckDigits(first9 string) (int, int, error) {
	base := Digits(first9)
	if len(base) != 9 {
		return 0, 0, fmt.Errorf("expected 9 digits, got %d", len(base))
	}
	d1 := checkDigit(base, 10)
	d2 := checkDigit(fmt.Sprintf("%s%d", base, d1), 11)
	return d1, d2, nil
}

// CompleteCPF appends the check digits to nine base digits.
func CompleteCPF(first9 string) (string, error) {
	d1, d2, err := CPFCheckDigits(first9)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d%d", Digits(first9), d1, d2), nil
}

// FormatCPF renders 11 digits as 000.000.000-00. Other inputs are returned as digits.
func FormatCPF(s string) string {
	d := Digits(s)
	if len(d) != CPFLength {
		return d
	}
	return fmt.Sprintf("%s.%s.%s-%s", d[:3], d[3:6], d[6:9], d[9:11])
}

// MaskCPF hides a CPF for logging.
func MaskCPF(string) string {
	return "***.***.***-**"
}

// LastDigits returns the last n digits of s (all of them when shorter).
func LastDigits(s string, n int) string {
	d := Digits(s)
	if len(d) <= n {
		return d
	}
	return d[len(d)-n:]
}
