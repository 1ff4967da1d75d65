package document

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// wireBlock is the flat {"id","type",...} form shared by the JSON, YAML and SQL codecs.
type wireBlock struct {
	ID          string      `json:"id" yaml:"id"`
	Type        Kind        `json:"type" yaml:"type"`
	Role        SignerRole  `json:"role,omitempty" yaml:"role,omitempty"`
	Required    bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Label       string      `json:"label,omitempty" yaml:"label,omitempty"`
	Title       string      `json:"title,omitempty" yaml:"title,omitempty"`
	Text        string      `json:"text,omitempty" yaml:"text,omitempty"`
	Level       int         `json:"level,omitempty" yaml:"level,omitempty"`
	Items       []string    `json:"items,omitempty" yaml:"items,omitempty"`
	Options     []string    `json:"options,omitempty" yaml:"options,omitempty"`
	Placeholder string      `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Multiline   bool        `json:"multiline,omitempty" yaml:"multiline,omitempty"`
	AutoFill    bool        `json:"autoFill,omitempty" yaml:"autoFill,omitempty"`
	Children    []wireBlock `json:"children,omitempty" yaml:"children,omitempty"`
}

func (w *wireBlock) setField(f Field) {
	w.Role = f.Role
	w.Required = f.Required
	w.Label = f.Label
}

func (w wireBlock) field() Field {
	return Field{Role: w.Role, Required: w.Required, Label: w.Label}
}

func toWire(b Block) wireBlock {
	w := wireBlock{ID: b.BlockID(), Type: b.Kind()}
	switch v := b.(type) {
	case Section:
		w.Title = v.Title
		w.Children = make([]wireBlock, 0, len(v.Children))
		for _, c := range v.Children {
			w.Children = append(w.Children, toWire(c))
		}
	case Heading:
		w.Text = v.Text
		w.Level = v.Level
	case Paragraph:
		w.Text = v.Text
	case BulletList:
		w.Items = v.Items
	case PageBreak:
	case SignatureField:
		w.setField(v.Field)
	case InitialsField:
		w.setField(v.Field)
	case DateField:
		w.setField(v.Field)
		w.AutoFill = v.AutoFill
	case TextInputField:
		w.setField(v.Field)
		w.Placeholder = v.Placeholder
		w.Multiline = v.Multiline
	case CheckboxField:
		w.setField(v.Field)
		w.Text = v.Text
	case DropdownField:
		w.setField(v.Field)
		w.Options = v.Options
	case SignatureBlock:
		w.setField(v.Field)
	case Acknowledgment:
		w.setField(v.Field)
		w.Text = v.Text
	}
	return w
}

func fromWire(w wireBlock) (Block, error) {
	switch w.Type {
	case KindSection:
		children := make(Blocks, 0, len(w.Children))
		for _, c := range w.Children {
			b, err := fromWire(c)
			if err != nil {
				return nil, err
			}
			children = append(children, b)
		}
		return Section{ID: w.ID, Title: w.Title, Children: children}, nil
	case KindHeading:
		return Heading{ID: w.ID, Text: w.Text, Level: w.Level}, nil
	case KindParagraph:
		return Paragraph{ID: w.ID, Text: w.Text}, nil
	case KindBulletList:
		return BulletList{ID: w.ID, Items: w.Items}, nil
	case KindPageBreak:
		return PageBreak{ID: w.ID}, nil
	case KindSignatureField:
		return SignatureField{ID: w.ID, Field: w.field()}, nil
	case KindInitialsField:
		return InitialsField{ID: w.ID, Field: w.field()}, nil
	case KindDateField:
		return DateField{ID: w.ID, Field: w.field(), AutoFill: w.AutoFill}, nil
	case KindTextInputField:
		return TextInputField{ID: w.ID, Field: w.field(), Placeholder: w.Placeholder, Multiline: w.Multiline}, nil
	case KindCheckboxField:
		return CheckboxField{ID: w.ID, Field: w.field(), Text: w.Text}, nil
	case KindDropdownField:
		return DropdownField{ID: w.ID, Field: w.field(), Options: w.Options}, nil
	case KindSignatureBlock:
		return SignatureBlock{ID: w.ID, Field: w.field()}, nil
	case KindAcknowledgment:
		return Acknowledgment{ID: w.ID, Field: w.field(), Text: w.Text}, nil
	default:
		return nil, fmt.Errorf("document: unknown block type %q (block %q)", w.Type, w.ID)
	}
}

func (bs Blocks) wire() []wireBlock {
	out := make([]wireBlock, 0, len(bs))
	for _, b := range bs {
		out = append(out, toWire(b))
	}
	return out
}

func blocksFromWire(ws []wireBlock) (Blocks, error) {
	out := make(Blocks, 0, len(ws))
	for _, w := range ws {
		b, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (bs Blocks) MarshalJSON() ([]byte, error) {
	return json.Marshal(bs.wire())
}

func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var ws []wireBlock
	if err := json.Unmarshal(data, &ws); err != nil {
		return fmt.Errorf("document: decode blocks: %w", err)
	}
	out, err := blocksFromWire(ws)
	if err != nil {
		return err
	}
	*bs = out
	return nil
}

func (bs Blocks) MarshalYAML() (interface{}, error) {
	return bs.wire(), nil
}

func (bs *Blocks) UnmarshalYAML(node *yaml.Node) error {
	var ws []wireBlock
	if err := node.Decode(&ws); err != nil {
		return fmt.Errorf("document: decode blocks: %w", err)
	}
	out, err := blocksFromWire(ws)
	if err != nil {
		return err
	}
	*bs = out
	return nil
}

// Value implements the driver.Valuer interface
func (bs Blocks) Value() (driver.Value, error) {
	if bs == nil {
		return "[]", nil
	}
	return json.Marshal(bs)
}

// Scan implements the sql.Scanner interface
func (bs *Blocks) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*bs = Blocks{}
		return nil
	case []byte:
		return bs.UnmarshalJSON(v)
	case string:
		return bs.UnmarshalJSON([]byte(v))
	default:
		return errors.New("document: unsupported type for blocks")
	}
}

// Validate checks ids are present and unique, signable blocks name a known role,
// and dropdowns offer at least one option.
func (bs Blocks) Validate() error {
	var problems []string
	seen := make(map[string]bool)
	bs.Walk(func(b Block) {
		id := strings.TrimSpace(b.BlockID())
		if id == "" {
			problems = append(problems, fmt.Sprintf("%s block without id", b.Kind()))
			return
		}
		if seen[id] {
			problems = append(problems, fmt.Sprintf("duplicate block id %q", id))
		}
		seen[id] = true

		if f, ok := Signable(b); ok && !f.Role.Valid() {
			problems = append(problems, fmt.Sprintf("block %q has unknown role %q", id, f.Role))
		}
		if d, ok := b.(DropdownField); ok && len(d.Options) == 0 {
			problems = append(problems, fmt.Sprintf("dropdown %q has no options", id))
		}
	})
	if len(problems) > 0 {
		return fmt.Errorf("document: invalid blocks: %s", strings.Join(problems, "; "))
	}
	return nil
}
