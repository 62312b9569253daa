package billing

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ms-activity/internal/models"
)

// referenceLength is the digit count of ESR and QR references including
// the check digit.
const referenceLength = 27

// Referencer creates payment references. Each scheme has its own format;
// references are stored normalized, without spaces and upper case.
type Referencer struct {
	// Prefix starts every QR-IBAN reference, usually the bank customer id.
	Prefix string
	random func() [16]byte
}

func NewReferencer(prefix string) *Referencer {
	return &Referencer{Prefix: prefix, random: func() [16]byte { return [16]byte(uuid.New()) }}
}

type referenceScheme struct {
	generate func(r *Referencer) (string, error)
	format   func(ref string) string
}

var referenceSchemes = map[models.ReferenceScheme]referenceScheme{
	models.SchemeGeneric: {generate: (*Referencer).generic, format: formatGeneric},
	models.SchemeESR:     {generate: (*Referencer).esr, format: formatDigits},
	models.SchemeQRIBAN:  {generate: (*Referencer).qrIBAN, format: formatDigits},
}

// New returns a fresh reference for scheme.
func (r *Referencer) New(scheme models.ReferenceScheme) (string, error) {
	s, ok := referenceSchemes[scheme]
	if !ok {
		return "", fmt.Errorf("%w: unknown reference scheme %q", models.ErrInvalidInput, scheme)
	}
	return s.generate(r)
}

// FormatReference renders a stored reference the way it is printed on a
// payment slip.
func FormatReference(scheme models.ReferenceScheme, ref string) string {
	if s, ok := referenceSchemes[scheme]; ok {
		return s.format(ref)
	}
	return ref
}

// NormalizeReference strips what people type around a reference.
func NormalizeReference(ref string) string {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	return strings.NewReplacer(" ", "", "-", "").Replace(ref)
}

func (r *Referencer) generic() (string, error) {
	b := r.random()
	return "Q" + strings.ToUpper(fmt.Sprintf("%x", b[:5])), nil
}

func (r *Referencer) esr() (string, error) {
	return withCheckDigit(r.digits(referenceLength - 1)), nil
}

func (r *Referencer) qrIBAN() (string, error) {
	prefix := NormalizeReference(r.Prefix)
	for _, c := range prefix {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("%w: reference prefix %q is not numeric", models.ErrInvalidInput, r.Prefix)
		}
	}
	if len(prefix) >= referenceLength-1 {
		return "", fmt.Errorf("%w: reference prefix %q is too long", models.ErrInvalidInput, r.Prefix)
	}
	return withCheckDigit(prefix + r.digits(referenceLength-1-len(prefix))), nil
}

// digits draws n random decimal digits.
func (r *Referencer) digits(n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		for _, b := range r.random() {
			if sb.Len() == n {
				break
			}
			sb.WriteByte('0' + b%10)
		}
	}
	return sb.String()
}

var mod10Table = [10]int{0, 9, 4, 6, 8, 2, 7, 1, 3, 5}

// Mod10 computes the recursive modulo 10 check digit of a digit string.
func Mod10(digits string) int {
	carry := 0
	for _, c := range digits {
		carry = mod10Table[(carry+int(c-'0'))%10]
	}
	return (10 - carry) % 10
}

func withCheckDigit(digits string) string {
	return fmt.Sprintf("%s%d", digits, Mod10(digits))
}

// ValidReference reports whether ref is well formed for scheme.
func ValidReference(scheme models.ReferenceScheme, ref string) bool {
	switch scheme {
	case models.SchemeGeneric:
		return len(ref) == 11 && ref[0] == 'Q'
	case models.SchemeESR, models.SchemeQRIBAN:
		if len(ref) != referenceLength {
			return false
		}
		for _, c := range ref {
			if c < '0' || c > '9' {
				return false
			}
		}
		return Mod10(ref[:referenceLength-1]) == int(ref[referenceLength-1]-'0')
	default:
		return false
	}
}

func formatGeneric(ref string) string {
	if len(ref) < 6 {
		return ref
	}
	return ref[:1] + "-" + ref[1:6] + "-" + ref[6:]
}

// formatDigits groups digits in fives from the right.
func formatDigits(ref string) string {
	head := len(ref) % 5
	parts := []string{}
	if head > 0 {
		parts = append(parts, ref[:head])
	}
	for i := head; i < len(ref); i += 5 {
		parts = append(parts, ref[i:i+5])
	}
	return strings.Join(parts, " ")
}
