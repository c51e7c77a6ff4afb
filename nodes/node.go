package nodes

import "strings"

// Kind determines how sibling nodes of one class share visibility.
type Kind int

const (
	// KindTab nodes are mutually exclusive: exactly one sibling is visible.
	KindTab Kind = iota
	// KindDropdown nodes expand and collapse independently of their siblings.
	KindDropdown
)

// String returns the kind name used by renderers.
func (k Kind) String() string {
	switch k {
	case KindTab:
		return "tab"
	case KindDropdown:
		return "dropdown"
	default:
		return "unknown"
	}
}

// Class identifies one structural list of children under a parent. Several
// classes can coexist under the same parent.
type Class struct {
	Tag  string
	Kind Kind
}

// TabClass returns a tab-kind class.
func TabClass(tag string) Class { return Class{Tag: tag, Kind: KindTab} }

// DropdownClass returns a dropdown-kind class.
func DropdownClass(tag string) Class { return Class{Tag: tag, Kind: KindDropdown} }

// Link is the selectable handle of a node.
type Link struct {
	Label         string
	Selected      bool
	Disassociated bool
	Processing    bool
}

// Row is a single name/value line of node content.
type Row struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Content holds the rendered detail of a node.
type Content struct {
	Hidden bool
	rows   []Row
	index  map[string]int
}

// SetRow updates the row called name in place or appends it.
func (c *Content) SetRow(name, value string) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if idx, ok := c.index[name]; ok {
		c.rows[idx].Value = value
		return
	}
	c.index[name] = len(c.rows)
	c.rows = append(c.rows, Row{Name: name, Value: value})
}

// Row returns the value of the row called name.
func (c *Content) Row(name string) (string, bool) {
	idx, ok := c.index[name]
	if !ok {
		return "", false
	}
	return c.rows[idx].Value, true
}

// Rows returns a copy of the content rows in insertion order.
func (c *Content) Rows() []Row {
	out := make([]Row, len(c.rows))
	copy(out, c.rows)
	return out
}

// ResetRows drops all rows whose name starts with prefix.
func (c *Content) ResetRows(prefix string) {
	kept := c.rows[:0]
	for _, row := range c.rows {
		if strings.HasPrefix(row.Name, prefix) {
			continue
		}
		kept = append(kept, row)
	}
	c.rows = kept
	c.index = make(map[string]int, len(kept))
	for i, row := range kept {
		c.index[row.Name] = i
	}
}

// Placeholder is the "not available" text shown under an empty list.
type Placeholder struct {
	Text    string
	Visible bool
}

type childList struct {
	class       Class
	children    []string
	placeholder Placeholder
}

func (l *childList) indexOf(key string) int {
	for i, child := range l.children {
		if child == key {
			return i
		}
	}
	return -1
}

// Node is a unit of the reconciled tree, one per server side resource.
type Node struct {
	Key     string
	Parent  string
	Class   Class
	Link    *Link
	Content *Content

	lists []*childList
}

func (n *Node) list(tag string) *childList {
	for _, l := range n.lists {
		if l.class.Tag == tag {
			return l
		}
	}
	return nil
}

func (n *Node) ensureList(class Class) *childList {
	if l := n.list(class.Tag); l != nil {
		return l
	}
	l := &childList{class: class, placeholder: Placeholder{Text: PlaceholderText, Visible: true}}
	n.lists = append(n.lists, l)
	return l
}

// PlaceholderText is shown for lists without entries.
const PlaceholderText = "- Not Available -"
