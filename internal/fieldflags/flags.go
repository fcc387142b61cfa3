// Package fieldflags encodes and decodes the behavior bits of an AcroForm
// text field's Ff word.
//
// Only five concerns are managed here: read-only, multiline, do-not-scroll,
// do-not-spell-check and the 2-bit quadding (alignment) field. Every other
// bit in the word is foreign and survives a read-modify-write cycle
// untouched.
//
// Bit 13 carries the password flag for some field types and the
// do-not-scroll flag for text fields. This package edits text fields only,
// so bit 13 is treated as exactly the do-not-scroll flag.
package fieldflags

// Alignment is the quadding value stored in bits 24-25.
type Alignment uint32

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// Managed bit positions within the Ff word (zero-indexed).
const (
	FlagReadOnly        uint32 = 1 << 0
	FlagMultiline       uint32 = 1 << 12
	FlagDoNotScroll     uint32 = 1 << 13
	FlagDoNotSpellCheck uint32 = 1 << 22

	alignmentShift        = 24
	alignmentMask  uint32 = 3 << alignmentShift

	managedMask = FlagReadOnly | FlagMultiline | FlagDoNotScroll | FlagDoNotSpellCheck | alignmentMask
)

// Attributes is the decoded view of the managed bits.
type Attributes struct {
	ReadOnly        bool
	Multiline       bool
	DoNotScroll     bool
	DoNotSpellCheck bool
	Alignment       Alignment
}

// Changes describes a partial update to the managed bits. A nil field leaves
// the corresponding attribute at its current value.
type Changes struct {
	ReadOnly        *bool
	Multiline       *bool
	DoNotScroll     *bool
	DoNotSpellCheck *bool
	Alignment       *Alignment
}

// Bool returns a pointer suitable for a Changes field.
func Bool(v bool) *bool { return &v }

// Align returns a pointer suitable for Changes.Alignment.
func Align(a Alignment) *Alignment { return &a }

// Decode extracts the managed attributes from a raw Ff word.
func Decode(raw uint32) Attributes {
	return Attributes{
		ReadOnly:        raw&FlagReadOnly != 0,
		Multiline:       raw&FlagMultiline != 0,
		DoNotScroll:     raw&FlagDoNotScroll != 0,
		DoNotSpellCheck: raw&FlagDoNotSpellCheck != 0,
		Alignment:       Alignment((raw & alignmentMask) >> alignmentShift),
	}
}

// Encode merges ch into raw and returns the new Ff word. Unmanaged bits of
// raw are carried over verbatim; managed attributes absent from ch retain
// their prior value. The alignment pair is always written back as a 2-bit
// field.
func Encode(raw uint32, ch Changes) uint32 {
	attrs := Decode(raw)
	if ch.ReadOnly != nil {
		attrs.ReadOnly = *ch.ReadOnly
	}
	if ch.Multiline != nil {
		attrs.Multiline = *ch.Multiline
	}
	if ch.DoNotScroll != nil {
		attrs.DoNotScroll = *ch.DoNotScroll
	}
	if ch.DoNotSpellCheck != nil {
		attrs.DoNotSpellCheck = *ch.DoNotSpellCheck
	}
	if ch.Alignment != nil {
		attrs.Alignment = *ch.Alignment
	}

	out := raw &^ managedMask
	if attrs.ReadOnly {
		out |= FlagReadOnly
	}
	if attrs.Multiline {
		out |= FlagMultiline
	}
	if attrs.DoNotScroll {
		out |= FlagDoNotScroll
	}
	if attrs.DoNotSpellCheck {
		out |= FlagDoNotSpellCheck
	}
	out |= (uint32(attrs.Alignment) << alignmentShift) & alignmentMask
	return out
}
