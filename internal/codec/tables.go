package codec

// Precomputed, fixed-width rendering tables. Every octet value renders to a
// constant-width string so the pretty printer can lay out columns without
// per-byte branching: two characters for hex, eight for bits.
var (
	hexLowerTable [256]string
	hexUpperTable [256]string
	bitsTable     [256]string
)

const hexDigitsLower = "0123456789abcdef"
const hexDigitsUpper = "0123456789ABCDEF"

func init() {
	for i := range 256 {
		hexLowerTable[i] = string([]byte{hexDigitsLower[i>>4], hexDigitsLower[i&0xf]})
		hexUpperTable[i] = string([]byte{hexDigitsUpper[i>>4], hexDigitsUpper[i&0xf]})

		bits := make([]byte, 8)
		for bit := range 8 {
			if i&(1<<(7-bit)) != 0 {
				bits[bit] = '1'
			} else {
				bits[bit] = '0'
			}
		}

		bitsTable[i] = string(bits)
	}
}

// HexTable returns the rendering table for the requested hex case.
func HexTable(upper bool) [256]string {
	if upper {
		return hexUpperTable
	}

	return hexLowerTable
}

// BitsTable returns the fixed rendering table for bits mode.
func BitsTable() [256]string {
	return bitsTable
}

// TextEncoding selects the text-column character mapping.
type TextEncoding int

const (
	TextNone TextEncoding = iota
	TextASCII
	TextEBCDIC
)

// asciiPrintable maps a byte to its printable ASCII glyph, or '.' for
// anything outside the printable range.
var asciiPrintable [256]byte

// ebcdicToASCII maps IBM EBCDIC (code page 037) to the ASCII glyph used for
// display; unmapped/control codes render as '.'.
var ebcdicToASCII [256]byte

func init() {
	for i := range 256 {
		if i >= 0x20 && i < 0x7f {
			asciiPrintable[i] = byte(i)
		} else {
			asciiPrintable[i] = '.'
		}
	}

	for i := range 256 {
		ebcdicToASCII[i] = '.'
	}

	// A representative subset of EBCDIC (cp037) letters/digits sufficient for
	// display purposes; anything outside this table renders as '.'.
	const ebcdicLower = "abcdefghijklmnopqrstuvwxyz"
	const ebcdicUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	lowerCodes := []int{0x81, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
		0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99,
		0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7, 0xa8, 0xa9}
	upperCodes := []int{0xc1, 0xc2, 0xc3, 0xc4, 0xc5, 0xc6, 0xc7, 0xc8, 0xc9,
		0xd1, 0xd2, 0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9,
		0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9}
	digitCodes := []int{0xf0, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8, 0xf9}

	for i, code := range lowerCodes {
		ebcdicToASCII[code] = ebcdicLower[i]
	}

	for i, code := range upperCodes {
		ebcdicToASCII[code] = ebcdicUpper[i]
	}

	for i, code := range digitCodes {
		ebcdicToASCII[code] = '0' + byte(i)
	}

	ebcdicToASCII[0x40] = ' '
}

// TextGlyph renders one octet under the selected text encoding.
func TextGlyph(enc TextEncoding, b byte) byte {
	switch enc {
	case TextASCII:
		return asciiPrintable[b]
	case TextEBCDIC:
		return ebcdicToASCII[b]
	default:
		return '.'
	}
}
