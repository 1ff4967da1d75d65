// Package document defines the block-based schema agreements are generated from.
//
// Every block kind is its own type behind the sealed Block interface; consumers
// switch over the concrete types so adding a kind is a compile-checked change.
package document

import "sort"

// Kind is the wire discriminator of a block.
type Kind string

const (
	KindSection        Kind = "section"
	KindHeading        Kind = "heading"
	KindParagraph      Kind = "paragraph"
	KindBulletList     Kind = "bulletList"
	KindPageBreak      Kind = "pageBreak"
	KindSignatureField Kind = "signatureField"
	KindInitialsField  Kind = "initialsField"
	KindDateField      Kind = "dateField"
	KindTextInputField Kind = "textInputField"
	KindCheckboxField  Kind = "checkboxField"
	KindDropdownField  Kind = "dropdownField"
	KindSignatureBlock Kind = "signatureBlock"
	KindAcknowledgment Kind = "acknowledgment"
)

// Block is a typed, positioned unit of document content.
type Block interface {
	BlockID() string
	Kind() Kind
	block()
}

// Field is the signer-facing part shared by every signable block.
type Field struct {
	Role     SignerRole
	Required bool
	Label    string
}

type Section struct {
	ID       string
	Title    string
	Children Blocks
}

type Heading struct {
	ID    string
	Text  string
	Level int
}

type Paragraph struct {
	ID   string
	Text string
}

type BulletList struct {
	ID    string
	Items []string
}

type PageBreak struct {
	ID string
}

type SignatureField struct {
	ID string
	Field
}

type InitialsField struct {
	ID string
	Field
}

type DateField struct {
	ID string
	Field
	// AutoFill stamps the signing date instead of asking the signer.
	AutoFill bool
}

type TextInputField struct {
	ID string
	Field
	Placeholder string
	Multiline   bool
}

type CheckboxField struct {
	ID string
	Field
	Text string
}

type DropdownField struct {
	ID string
	Field
	Options []string
}

// SignatureBlock is the legacy combined signature/name/date block.
type SignatureBlock struct {
	ID string
	Field
}

// Acknowledgment is the legacy "I have read and understood" block.
type Acknowledgment struct {
	ID string
	Field
	Text string
}

func (b Section) BlockID() string        { return b.ID }
func (b Heading) BlockID() string        { return b.ID }
func (b Paragraph) BlockID() string      { return b.ID }
func (b BulletList) BlockID() string     { return b.ID }
func (b PageBreak) BlockID() string      { return b.ID }
func (b SignatureField) BlockID() string { return b.ID }
func (b InitialsField) BlockID() string  { return b.ID }
func (b DateField) BlockID() string      { return b.ID }
func (b TextInputField) BlockID() string { return b.ID }
func (b CheckboxField) BlockID() string  { return b.ID }
func (b DropdownField) BlockID() string  { return b.ID }
func (b SignatureBlock) BlockID() string { return b.ID }
func (b Acknowledgment) BlockID() string { return b.ID }

func (Section) Kind() Kind        { return KindSection }
func (Heading) Kind() Kind        { return KindHeading }
func (Paragraph) Kind() Kind      { return KindParagraph }
func (BulletList) Kind() Kind     { return KindBulletList }
func (PageBreak) Kind() Kind      { return KindPageBreak }
func (SignatureField) Kind() Kind { return KindSignatureField }
func (InitialsField) Kind() Kind  { return KindInitialsField }
func (DateField) Kind() Kind      { return KindDateField }
func (TextInputField) Kind() Kind { return KindTextInputField }
func (CheckboxField) Kind() Kind  { return KindCheckboxField }
func (DropdownField) Kind() Kind  { return KindDropdownField }
func (SignatureBlock) Kind() Kind { return KindSignatureBlock }
func (Acknowledgment) Kind() Kind { return KindAcknowledgment }

func (Section) block()        {}
func (Heading) block()        {}
func (Paragraph) block()      {}
func (BulletList) block()     {}
func (PageBreak) block()      {}
func (SignatureField) block() {}
func (InitialsField) block()  {}
func (DateField) block()      {}
func (TextInputField) block() {}
func (CheckboxField) block()  {}
func (DropdownField) block()  {}
func (SignatureBlock) block() {}
func (Acknowledgment) block() {}

// Signable returns the signer field of b, or false for structure/content blocks.
func Signable(b Block) (Field, bool) {
	switch v := b.(type) {
	case SignatureField:
		return v.Field, true
	case InitialsField:
		return v.Field, true
	case DateField:
		return v.Field, true
	case TextInputField:
		return v.Field, true
	case CheckboxField:
		return v.Field, true
	case DropdownField:
		return v.Field, true
	case SignatureBlock:
		return v.Field, true
	case Acknowledgment:
		return v.Field, true
	case Section, Heading, Paragraph, BulletList, PageBreak:
		return Field{}, false
	default:
		return Field{}, false
	}
}

// Blocks is an ordered list of blocks. It carries its own JSON, YAML and SQL codecs.
type Blocks []Block

// Walk visits every block depth-first, descending into sections.
func (bs Blocks) Walk(fn func(Block)) {
	for _, b := range bs {
		fn(b)
		if s, ok := b.(Section); ok {
			s.Children.Walk(fn)
		}
	}
}

// Roles returns the distinct roles referenced by signable blocks, in
// conventional signing order.
func (bs Blocks) Roles() []SignerRole {
	seen := make(map[SignerRole]bool)
	bs.Walk(func(b Block) {
		if f, ok := Signable(b); ok {
			seen[f.Role] = true
		}
	})
	out := make([]SignerRole, 0, len(seen))
	for _, r := range Roles() {
		if seen[r] {
			out = append(out, r)
			delete(seen, r)
		}
	}
	// Roles outside the closed set still participate, after the known ones.
	extra := make([]SignerRole, 0, len(seen))
	for r := range seen {
		extra = append(extra, r)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// FieldsFor returns the signable blocks owned by role, keyed by block id.
func (bs Blocks) FieldsFor(role SignerRole) map[string]Field {
	out := make(map[string]Field)
	bs.Walk(func(b Block) {
		if f, ok := Signable(b); ok && f.Role == role {
			out[b.BlockID()] = f
		}
	})
	return out
}

// Find looks a block up by id anywhere in the tree.
func (bs Blocks) Find(id string) (Block, bool) {
	var found Block
	bs.Walk(func(b Block) {
		if found == nil && b.BlockID() == id {
			found = b
		}
	})
	return found, found != nil
}
