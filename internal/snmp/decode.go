package snmp

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"
	"golang.org/x/text/encoding/korean"

	"beacon/internal/catalog"
	"beacon/internal/models"
)

// Decode renders a variable binding as text according to the rule's decode kind.
func Decode(kind models.Decode, b Binding) string {
	switch kind {
	case models.DecodeText:
		if raw, ok := b.Value.([]byte); ok {
			return decodeText(raw)
		}
	case models.DecodeTimeTicks:
		if b.Type == gosnmp.TimeTicks {
			// hundredths of a second
			return new(big.Int).Mul(gosnmp.ToBigInt(b.Value), big.NewInt(10)).String()
		}
	}
	return decodeRaw(b)
}

// decodeText tries UTF-8 first, then EUC-KR, which older Korean agents
// use for sysDescr and ifAlias. Bytes valid in neither are kept as-is.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if out, err := korean.EUCKR.NewDecoder().Bytes(raw); err == nil {
		return string(out)
	}
	return string(raw)
}

func decodeRaw(b Binding) string {
	switch b.Type {
	case gosnmp.OctetString, gosnmp.Opaque, gosnmp.BitString:
		raw, ok := b.Value.([]byte)
		if !ok {
			return fmt.Sprint(b.Value)
		}
		if printable(raw) {
			return string(raw)
		}
		return hexString(raw)
	case gosnmp.ObjectIdentifier:
		s, _ := b.Value.(string)
		return catalog.Trim(s)
	case gosnmp.IPAddress:
		s, _ := b.Value.(string)
		return s
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks,
		gosnmp.Counter64, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(b.Value).String()
	case gosnmp.Null:
		return ""
	default:
		return fmt.Sprint(b.Value)
	}
}

func printable(raw []byte) bool {
	if len(raw) == 0 || !utf8.Valid(raw) {
		return false
	}
	for _, r := range string(raw) {
		if !unicode.IsPrint(r) && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func hexString(raw []byte) string {
	var sb strings.Builder
	for i, c := range raw {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}
