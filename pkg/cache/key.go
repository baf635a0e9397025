package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/catalog-search-cache/pkg/filter"
)

// CacheKey identifies a cached upstream response.
type CacheKey struct {
	// Namespace partitions keys per upstream endpoint (e.g. "GET /catalogo/busca").
	// Empty means the shared namespace.
	Namespace string

	// Filters are the request filters; they are normalized before hashing.
	Filters filter.FilterSet
}

// Namespace builds the namespace for an upstream method and path.
func Namespace(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Digest returns the 64 character lowercase hex SHA-256 of the key.
func (k CacheKey) Digest() (string, error) {
	return DeriveNamespacedKey(k.Namespace, k.Filters)
}

// DeriveKey hashes the canonical form of filters.
//
// Example:
//
//	DeriveKey(filter.FilterSet{"termo": filter.Str("Encanador")})
//	// sha256(`{"termo":"encanador"}`)
func DeriveKey(filters filter.FilterSet) (string, error) {
	return DeriveNamespacedKey("", filters)
}

// DeriveNamespacedKey hashes namespace + "\n" + canonical form of filters.
// An empty namespace yields the same key as DeriveKey.
func DeriveNamespacedKey(namespace string, filters filter.FilterSet) (string, error) {
	canonical, err := Canonical(filters)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if namespace != "" {
		h.Write([]byte(namespace))
		h.Write([]byte{'\n'})
	}
	h.Write(canonical)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonical normalizes filters and encodes them as compact JSON with object
// keys sorted at every level and numbers in a stable decimal form.
func Canonical(filters filter.FilterSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, filter.Map(filter.Normalize(filters))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v filter.Value) error {
	switch v.Kind() {
	case filter.KindNull:
		buf.WriteString("null")
	case filter.KindString:
		writeString(buf, v.StringValue())
	case filter.KindNumber:
		num, err := canonicalNumber(v.NumberValue())
		if err != nil {
			return err
		}
		buf.WriteString(num)
	case filter.KindBool:
		buf.WriteString(strconv.FormatBool(v.BoolValue()))
	case filter.KindMapping:
		m := v.MapValue()
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)

		buf.WriteByte('{')
		for i, name := range names {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, name)
			buf.WriteByte(':')
			if err := writeCanonical(buf, m[name]); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		buf.WriteByte('}')
	case filter.KindSequence:
		buf.WriteByte('[')
		for i, item := range v.ListValue() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("%w: %s", filter.ErrUnsupportedValue, v.Kind())
	}
	return nil
}

// writeString emits s as a JSON string without HTML escaping.
func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline
	buf.Truncate(buf.Len() - 1)
}

// maxPlainDigits bounds how long a number may get before it is written in
// exponent form.
const maxPlainDigits = 21

// maxExponent bounds the exponent part of a number literal.
const maxExponent = 1 << 20

// canonicalNumber rewrites n as an exact decimal so that 1, 1.0 and 1e0
// agree while distinct values never do. Values outside the float64 range
// are rejected.
//
// Integers with at most maxPlainDigits digits are written plainly ("100"),
// fractions with a small exponent as decimals ("2.5", "0.001"), everything
// else in exponent form ("1e+21", "1.25e-09").
func canonicalNumber(n json.Number) (string, error) {
	invalid := fmt.Errorf("%w: number %q", filter.ErrUnsupportedValue, string(n))

	neg, digits, exp, ok := parseDecimal(string(n))
	if !ok {
		return "", invalid
	}
	if f, err := strconv.ParseFloat(string(n), 64); err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", invalid
	}

	// strip to digits * 10^exp with no leading or trailing zeros
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "0", nil
	}
	trimmed := strings.TrimRight(digits, "0")
	exp += len(digits) - len(trimmed)
	digits = trimmed

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}

	// lead is the decimal exponent of the first digit
	lead := len(digits) - 1 + exp
	switch {
	case exp >= 0 && len(digits)+exp <= maxPlainDigits:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", exp))
	case exp < 0 && lead >= -7 && lead < maxPlainDigits:
		if lead < 0 {
			b.WriteString("0.")
			b.WriteString(strings.Repeat("0", -lead-1))
			b.WriteString(digits)
		} else {
			b.WriteString(digits[:lead+1])
			b.WriteByte('.')
			b.WriteString(digits[lead+1:])
		}
	default:
		b.WriteByte(digits[0])
		if len(digits) > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		if lead < 0 {
			b.WriteByte('-')
			lead = -lead
		} else {
			b.WriteByte('+')
		}
		if lead < 10 {
			b.WriteByte('0')
		}
		b.WriteString(strconv.Itoa(lead))
	}
	return b.String(), nil
}

// parseDecimal splits a JSON number into its sign, all significant digits
// and the power of ten they are scaled by.
func parseDecimal(s string) (neg bool, digits string, exp int, ok bool) {
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	mantissa, exponent, hasExp := strings.Cut(strings.ToLower(s), "e")
	intPart, frac, hasFrac := strings.Cut(mantissa, ".")
	if !isDigits(intPart) || (hasFrac && !isDigits(frac)) {
		return false, "", 0, false
	}
	if len(intPart) > 1 && intPart[0] == '0' {
		return false, "", 0, false
	}

	if hasExp {
		e, err := strconv.Atoi(strings.TrimPrefix(exponent, "+"))
		if err != nil || exponent == "" || strings.HasPrefix(exponent, "+-") || strings.HasPrefix(exponent, "--") {
			return false, "", 0, false
		}
		if e > maxExponent || e < -maxExponent {
			return false, "", 0, false
		}
		exp = e
	}

	return neg, intPart + frac, exp - len(frac), true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
