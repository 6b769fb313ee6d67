package document

import "fmt"

// ValidatePhone accepts Brazilian phone numbers with 10 (landline) or
// 11 (mobile) digits that are not a single repeated digit.
func ValidatePhone(s string) bool {
	d := Digits(s)
	if len(d) < 10 || len(d) > 11 {
		return false
	}
	return !allSame(d)
}

// FormatPhone renders (00) 0000-0000 or (00) 00000-0000.
func FormatPhone(s string) string {
	d := Digits(s)
	switch len(d) {
	case 10:
		return fmt.Sprintf("(%s) %s-%s", d[:2], d[2:6], d[6:])
	case 11:
		return fmt.Sprintf("(%s) %s-%s", d[:2], d[2:7], d[7:])
	}
	return d
}

// MaskPhone hides a phone number for logging.
func MaskPhone(string) string {
	return "(**) *****-****"
}
