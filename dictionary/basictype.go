package dictionary

import "fmt"

// BasicType is the category of a type entry. It selects the pack/unpack
// recursion arm and the Detail variant the entry carries.
type BasicType uint8

const (
	BasicNone BasicType = iota
	BasicSignedInt
	BasicUnsignedInt
	BasicFloat
	BasicBinary
	BasicArray
	BasicContainer
)

var basicTypeNames = [...]string{
	BasicNone:        "none",
	BasicSignedInt:   "signed_int",
	BasicUnsignedInt: "unsigned_int",
	BasicFloat:       "float",
	BasicBinary:      "binary",
	BasicArray:       "array",
	BasicContainer:   "container",
}

func (t BasicType) String() string {
	if int(t) < len(basicTypeNames) {
		return basicTypeNames[t]
	}
	return fmt.Sprintf("basictype(%d)", t)
}

// IsNumber reports whether the category is a numeric scalar.
func (t BasicType) IsNumber() bool {
	return t == BasicSignedInt || t == BasicUnsignedInt || t == BasicFloat
}

// IsScalar reports whether the category has no sub-elements.
func (t BasicType) IsScalar() bool {
	return t.IsNumber() || t == BasicBinary
}

func basicTypeFromName(name string) (BasicType, bool) {
	for i, n := range basicTypeNames {
		if n == name {
			return BasicType(i), true
		}
	}
	return BasicNone, false
}

// Flags records declaration-level properties of an entry.
type Flags uint8

const (
	// FlagPackedBE marks a container declared with big-endian packing.
	FlagPackedBE Flags = 1 << iota
	// FlagPackedLE marks a container declared with little-endian packing.
	FlagPackedLE
)

// SizeInfo is the dual extent of a type: exact packed width in bits and
// native structure width in bytes (including any trailing padding the
// target layout requires).
type SizeInfo struct {
	Bits  uint32
	Bytes uint32
}

// Offset is the dual position of an entity within its container: bit offset
// in the packed stream and byte offset in the native structure.
type Offset struct {
	Bits  uint32
	Bytes uint32
}

// NumberEncoding selects the wire representation family of a number.
type NumberEncoding uint8

const (
	EncodingUnsigned NumberEncoding = iota
	EncodingTwosComplement
	EncodingOnesComplement
	EncodingSignMagnitude
	EncodingBCDOctet
	EncodingPackedBCD
	EncodingIEEE754
	EncodingMILSTD1750A
)

var encodingNames = [...]string{
	EncodingUnsigned:       "unsigned",
	EncodingTwosComplement: "twos_complement",
	EncodingOnesComplement: "ones_complement",
	EncodingSignMagnitude:  "sign_magnitude",
	EncodingBCDOctet:       "bcd_octet",
	EncodingPackedBCD:      "packed_bcd",
	EncodingIEEE754:        "ieee754",
	EncodingMILSTD1750A:    "milstd1750a",
}

func (e NumberEncoding) String() string {
	if int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("encoding(%d)", e)
}

func encodingFromName(name string) (NumberEncoding, bool) {
	for i, n := range encodingNames {
		if n == name {
			return NumberEncoding(i), true
		}
	}
	return EncodingUnsigned, false
}

// ByteOrder is the multi-byte ordering of a packed number.
type ByteOrder uint8

const (
	ByteOrderBig ByteOrder = iota
	ByteOrderLittle
)

func (o ByteOrder) String() string {
	if o == ByteOrderLittle {
		return "little"
	}
	return "big"
}

// Charset identifies the text interpretation of a string field.
type Charset uint8

const (
	CharsetASCII Charset = iota
	CharsetUTF8
)

func (c Charset) String() string {
	if c == CharsetUTF8 {
		return "utf8"
	}
	return "ascii"
}

// ErrCtlAlgorithm selects the integrity algorithm of an error control entry.
type ErrCtlAlgorithm uint8

const (
	ErrCtlNone ErrCtlAlgorithm = iota
	ErrCtlChecksumXOR
	ErrCtlCRC8
	ErrCtlCRC16CCITT
	ErrCtlCRC32
)

var errCtlNames = [...]string{
	ErrCtlNone:        "none",
	ErrCtlChecksumXOR: "checksum_xor",
	ErrCtlCRC8:        "crc8",
	ErrCtlCRC16CCITT:  "crc16_ccitt",
	ErrCtlCRC32:       "crc32",
}

func (a ErrCtlAlgorithm) String() string {
	if int(a) < len(errCtlNames) {
		return errCtlNames[a]
	}
	return fmt.Sprintf("errctl(%d)", a)
}

// Width returns the packed bit width the algorithm's result occupies.
func (a ErrCtlAlgorithm) Width() uint32 {
	switch a {
	case ErrCtlChecksumXOR, ErrCtlCRC8:
		return 8
	case ErrCtlCRC16CCITT:
		return 16
	case ErrCtlCRC32:
		return 32
	default:
		return 0
	}
}

func errCtlFromName(name string) (ErrCtlAlgorithm, bool) {
	for i, n := range errCtlNames {
		if n == name {
			return ErrCtlAlgorithm(i), true
		}
	}
	return ErrCtlNone, false
}

// IdentOp is the operation of one identification sequence node.
type IdentOp uint8

const (
	IdentInvalid IdentOp = iota
	IdentEntityLocation
	IdentValueCondition
	IdentRangeCondition
	IdentTypeCondition
	IdentResult
)

var identOpNames = [...]string{
	IdentInvalid:        "invalid",
	IdentEntityLocation: "entity_location",
	IdentValueCondition: "value_condition",
	IdentRangeCondition: "range_condition",
	IdentTypeCondition:  "type_condition",
	IdentResult:         "result",
}

func (op IdentOp) String() string {
	if int(op) < len(identOpNames) {
		return identOpNames[op]
	}
	return fmt.Sprintf("identop(%d)", op)
}

func identOpFromName(name string) (IdentOp, bool) {
	for i, n := range identOpNames {
		if n == name {
			return IdentOp(i), true
		}
	}
	return IdentInvalid, false
}
