// Package iso87 defines the ISO 8583:1987 field catalog for ASCII messages.
// Binary (b) elements are carried as hex text, so a 64-bit element takes
// 16 characters.
package iso87

import (
	"fmt"

	"iso8583_parser/internal/dictionary"
	"iso8583_parser/internal/iso8583"
	"iso8583_parser/internal/registry"
)

// Name is the registry name of this dictionary.
const Name = "iso87"

const (
	n   = iso8583.ClassNumeric
	an  = iso8583.ClassAlphaNumeric
	ans = iso8583.ClassANS
	b   = iso8583.ClassBinary
	z   = iso8583.ClassTrack
)

var fixed, llvar, lllvar = iso8583.FixedField, iso8583.LLVarField, iso8583.LLLVarField

// Fields returns a fresh copy of the catalog so callers may extend it.
func Fields() map[int]iso8583.FieldDetail {
	f := map[int]iso8583.FieldDetail{
		2:  llvar(n, 19, "Primary Account Number (PAN)"),
		3:  fixed(n, 6, "Processing Code"),
		4:  fixed(n, 12, "Amount, Transaction"),
		5:  fixed(n, 12, "Amount, Settlement"),
		6:  fixed(n, 12, "Amount, Cardholder Billing"),
		7:  fixed(n, 10, "Transmission Date & Time"),
		8:  fixed(n, 8, "Amount, Cardholder Billing Fee"),
		9:  fixed(n, 8, "Conversion Rate, Settlement"),
		10: fixed(n, 8, "Conversion Rate, Cardholder Billing"),
		11: fixed(n, 6, "System Trace Audit Number (STAN)"),
		12: fixed(n, 6, "Time, Local Transaction"),
		13: fixed(n, 4, "Date, Local Transaction"),
		14: fixed(n, 4, "Date, Expiration"),
		15: fixed(n, 4, "Date, Settlement"),
		16: fixed(n, 4, "Date, Conversion"),
		17: fixed(n, 4, "Date, Capture"),
		18: fixed(n, 4, "Merchant Type"),
		19: fixed(n, 3, "Acquiring Institution Country Code"),
		20: fixed(n, 3, "PAN Extended, Country Code"),
		21: fixed(n, 3, "Forwarding Institution Country Code"),
		22: fixed(n, 3, "Point of Service Entry Mode"),
		23: fixed(n, 3, "Application PAN Sequence Number"),
		24: fixed(n, 3, "Network International Identifier (NII)"),
		25: fixed(n, 2, "Point of Service Condition Code"),
		26: fixed(n, 2, "Point of Service Capture Code"),
		27: fixed(n, 1, "Authorizing Identification Response Length"),
		28: fixed(an, 9, "Amount, Transaction Fee"),
		29: fixed(an, 9, "Amount, Settlement Fee"),
		30: fixed(an, 9, "Amount, Transaction Processing Fee"),
		31: fixed(an, 9, "Amount, Settlement Processing Fee"),
		32: llvar(n, 11, "Acquiring Institution Identification Code"),
		33: llvar(n, 11, "Forwarding Institution Identification Code"),
		34: llvar(ans, 28, "Primary Account Number, Extended"),
		35: llvar(z, 37, "Track 2 Data"),
		36: lllvar(n, 104, "Track 3 Data"),
		37: fixed(an, 12, "Retrieval Reference Number"),
		38: fixed(an, 6, "Authorization Identification Response"),
		39: fixed(an, 2, "Response Code"),
		40: fixed(an, 3, "Service Restriction Code"),
		41: fixed(ans, 8, "Card Acceptor Terminal Identification"),
		42: fixed(ans, 15, "Card Acceptor Identification Code"),
		43: fixed(ans, 40, "Card Acceptor Name/Location"),
		44: llvar(an, 25, "Additional Response Data"),
		45: llvar(an, 76, "Track 1 Data"),
		46: lllvar(an, 999, "Additional Data - ISO"),
		47: lllvar(an, 999, "Additional Data - National"),
		48: lllvar(an, 999, "Additional Data - Private"),
		49: fixed(n, 3, "Currency Code, Transaction"),
		50: fixed(n, 3, "Currency Code, Settlement"),
		51: fixed(n, 3, "Currency Code, Cardholder Billing"),
		52: fixed(b, 16, "Personal Identification Number (PIN) Data"),
		53: fixed(n, 16, "Security Related Control Information"),
		54: lllvar(an, 120, "Additional Amounts"),
		55: lllvar(ans, 999, "ICC Data"),
		56: lllvar(ans, 999, "Reserved ISO"),
		64: fixed(b, 16, "Message Authentication Code (MAC)"),

		66: fixed(n, 1, "Settlement Code"),
		67: fixed(n, 2, "Extended Payment Code"),
		68: fixed(n, 3, "Receiving Institution Country Code"),
		69: fixed(n, 3, "Settlement Institution Country Code"),
		70: fixed(n, 3, "Network Management Information Code"),
		71: fixed(n, 4, "Message Number"),
		72: fixed(n, 4, "Message Number, Last"),
		73: fixed(n, 6, "Date, Action"),
		74: fixed(n, 10, "Credits, Number"),
		75: fixed(n, 10, "Credits, Reversal Number"),
		76: fixed(n, 10, "Debits, Number"),
		77: fixed(n, 10, "Debits, Reversal Number"),
		78: fixed(n, 10, "Transfer, Number"),
		79: fixed(n, 10, "Transfer, Reversal Number"),
		80: fixed(n, 10, "Inquiries, Number"),
		81: fixed(n, 10, "Authorizations, Number"),
		82: fixed(n, 12, "Credits, Processing Fee Amount"),
		83: fixed(n, 12, "Credits, Transaction Fee Amount"),
		84: fixed(n, 12, "Debits, Processing Fee Amount"),
		85: fixed(n, 12, "Debits, Transaction Fee Amount"),
		86: fixed(n, 16, "Credits, Amount"),
		87: fixed(n, 16, "Credits, Reversal Amount"),
		88: fixed(n, 16, "Debits, Amount"),
		89: fixed(n, 16, "Debits, Reversal Amount"),
		90: fixed(n, 42, "Original Data Elements"),
		91: fixed(an, 1, "File Update Code"),
		92: fixed(an, 2, "File Security Code"),
		93: fixed(an, 5, "Response Indicator"),
		94: fixed(an, 7, "Service Indicator"),
		95: fixed(an, 42, "Replacement Amounts"),
		96: fixed(b, 16, "Message Security Code"),
		97: fixed(an, 17, "Amount, Net Settlement"),
		98: fixed(ans, 25, "Payee"),

		99:  llvar(n, 11, "Settlement Institution Identification Code"),
		100: llvar(n, 11, "Receiving Institution Identification Code"),
		101: llvar(ans, 17, "File Name"),
		102: llvar(ans, 28, "Account Identification 1"),
		103: llvar(ans, 28, "Account Identification 2"),
		104: lllvar(ans, 100, "Transaction Description"),
		128: fixed(b, 16, "Message Authentication Code (MAC)"),
	}

	reserved := func(from, to int, label string) {
		for i := from; i <= to; i++ {
			f[i] = lllvar(ans, 999, label)
		}
	}
	reserved(57, 59, "Reserved National")
	reserved(60, 63, "Reserved Private")
	reserved(105, 111, "Reserved for ISO Use")
	reserved(112, 119, "Reserved for National Use")
	reserved(120, 127, "Reserved for Private Use")

	return f
}

var dict = dictionary.MustNew(Name, Fields())

// Dictionary returns the shared, read-only catalog.
func Dictionary() *dictionary.Static {
	return dict
}

func init() {
	registry.Register(registry.Entry{
		Name:        Name,
		Description: fmt.Sprintf("ISO 8583:1987 ASCII, %d fields", dict.Len()),
		Dictionary:  dict,
	})
	registry.Alias("iso8583-1987", Name)
}
