// Package iso93 defines the ISO 8583:1993 field catalog for ASCII messages,
// expressed as the 1987 catalog with the elements that changed layout.
package iso93

import (
	"fmt"

	"iso8583_parser/internal/dictionaries/iso87"
	"iso8583_parser/internal/dictionary"
	"iso8583_parser/internal/iso8583"
	"iso8583_parser/internal/registry"
)

// Name is the registry name of this dictionary.
const Name = "iso93"

const (
	n   = iso8583.ClassNumeric
	an  = iso8583.ClassAlphaNumeric
	ans = iso8583.ClassANS
	b   = iso8583.ClassBinary
)

var fixed, llvar, lllvar = iso8583.FixedField, iso8583.LLVarField, iso8583.LLLVarField

// Changes returns the 1993 definitions that differ from 1987.
func Changes() map[int]iso8583.FieldDetail {
	return map[int]iso8583.FieldDetail{
		12: fixed(n, 12, "Date and Time, Local Transaction"),
		22: fixed(an, 12, "Point of Service Data Code"),
		24: fixed(n, 3, "Function Code"),
		25: fixed(n, 4, "Message Reason Code"),
		26: fixed(n, 4, "Card Acceptor Business Code"),
		27: fixed(n, 1, "Approval Code Length"),
		28: fixed(n, 6, "Date, Reconciliation"),
		29: fixed(n, 3, "Reconciliation Indicator"),
		30: fixed(n, 24, "Amounts, Original"),
		31: llvar(ans, 99, "Acquirer Reference Data"),
		39: fixed(n, 3, "Action Code"),
		43: llvar(ans, 99, "Card Acceptor Name/Location"),
		53: llvar(b, 48, "Security Related Control Information"),
		55: lllvar(b, 255, "Integrated Circuit Card System Related Data"),
		56: llvar(n, 35, "Original Data Elements"),
		90: llvar(n, 42, "Reserved for ISO Use"),
	}
}

var dict = dictionary.Merge(Name, iso87.Dictionary(), dictionary.MustNew(Name+"-changes", Changes()))

// Dictionary returns the shared, read-only catalog.
func Dictionary() *dictionary.Static {
	return dict
}

func init() {
	registry.Register(registry.Entry{
		Name:        Name,
		Description: fmt.Sprintf("ISO 8583:1993 ASCII, %d fields", dict.Len()),
		Dictionary:  dict,
	})
	registry.Alias("iso8583-1993", Name)
}
