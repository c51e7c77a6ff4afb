package nodes

import (
	"errors"
	"fmt"
	"strconv"
)

// RootKey identifies the implicit root node. It is always present and never
// hidden.
const RootKey = "root"

var (
	// ErrUnknownParent is returned when an operation references a parent key
	// that is not registered.
	ErrUnknownParent = errors.New("unknown parent node")
	// ErrUnknownNode is returned when an operation references a missing node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateKey is returned when a key is inserted twice.
	ErrDuplicateKey = errors.New("duplicate node key")
)

// Registry is the arena of live nodes addressed by key. It is not safe for
// concurrent use; callers serialize access.
type Registry struct {
	nodes map[string]*Node
}

// NewRegistry builds a registry holding only the root node.
func NewRegistry() *Registry {
	root := &Node{
		Key:     RootKey,
		Class:   TabClass(RootKey),
		Link:    &Link{Selected: true},
		Content: &Content{},
	}
	return &Registry{nodes: map[string]*Node{RootKey: root}}
}

// Len reports the number of registered nodes, root excluded.
func (r *Registry) Len() int {
	return len(r.nodes) - 1
}

// Exists reports whether key is registered.
func (r *Registry) Exists(key string) bool {
	_, ok := r.nodes[key]
	return ok
}

// Get returns the node registered under key.
func (r *Registry) Get(key string) (*Node, bool) {
	node, ok := r.nodes[key]
	return node, ok
}

// Children returns the child keys of parentKey for the class tag, in
// structural order.
func (r *Registry) Children(parentKey, classTag string) []string {
	parent, ok := r.nodes[parentKey]
	if !ok {
		return nil
	}
	l := parent.list(classTag)
	if l == nil {
		return nil
	}
	out := make([]string, len(l.children))
	copy(out, l.children)
	return out
}

// Placeholder returns the placeholder state of a child list.
func (r *Registry) Placeholder(parentKey, classTag string) (Placeholder, bool) {
	parent, ok := r.nodes[parentKey]
	if !ok {
		return Placeholder{}, false
	}
	l := parent.list(classTag)
	if l == nil {
		return Placeholder{}, false
	}
	return l.placeholder, true
}

// EnsureList declares an (empty) child list of class under parentKey so that
// its placeholder is rendered before the first child arrives.
func (r *Registry) EnsureList(parentKey string, class Class) error {
	parent, ok := r.nodes[parentKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParent, parentKey)
	}
	parent.ensureList(class)
	return nil
}

// InsertSorted inserts node below parentKey. Children stay in ascending order
// of the numeric id that follows schemeTag in their URL; the node is appended
// when no child with a greater id exists or ids cannot be parsed.
func (r *Registry) InsertSorted(parentKey string, node *Node, schemeTag string) error {
	if node == nil {
		return errors.New("node must not be nil")
	}
	parent, ok := r.nodes[parentKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParent, parentKey)
	}
	if _, exists := r.nodes[node.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, node.Key)
	}
	if node.Link == nil {
		node.Link = &Link{}
	}
	if node.Content == nil {
		node.Content = &Content{Hidden: !node.Link.Selected}
	}

	l := parent.ensureList(node.Class)
	pos := len(l.children)
	if id, ok := sortID(node.Key, schemeTag); ok {
		for i, child := range l.children {
			childID, ok := sortID(child, schemeTag)
			if ok && childID > id {
				pos = i
				break
			}
		}
	}
	l.children = append(l.children, "")
	copy(l.children[pos+1:], l.children[pos:])
	l.children[pos] = node.Key

	node.Parent = parentKey
	r.nodes[node.Key] = node
	return nil
}

func sortID(key, schemeTag string) (int64, bool) {
	raw, ok := IDInURL(URLFromKey(key), schemeTag)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// CreateNode creates a node with its link and content and inserts it sorted
// below parentKey. Tab-kind nodes start selected only when no sibling is
// selected yet; dropdown-kind nodes follow initiallySelected.
func (r *Registry) CreateNode(key, parentKey string, class Class, schemeTag, label string, initiallySelected bool) (*Content, error) {
	parent, ok := r.nodes[parentKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParent, parentKey)
	}
	selected := initiallySelected
	if class.Kind == KindTab {
		selected = !r.anySelected(parent.list(class.Tag))
	}
	node := &Node{
		Key:     key,
		Class:   class,
		Link:    &Link{Label: label, Selected: selected},
		Content: &Content{Hidden: !selected},
	}
	if err := r.InsertSorted(parentKey, node, schemeTag); err != nil {
		return nil, err
	}
	return node.Content, nil
}

// EraseNode removes key and its subtree. Missing keys are ignored.
func (r *Registry) EraseNode(key string) {
	r.Remove(key)
}

// Remove detaches key and its whole subtree. When the removed node was the
// selected member of a tab group the previous sibling (or the next one) is
// selected instead. Missing keys are ignored.
func (r *Registry) Remove(key string) {
	node, ok := r.nodes[key]
	if !ok || key == RootKey {
		return
	}
	if parent, ok := r.nodes[node.Parent]; ok {
		if l := parent.list(node.Class.Tag); l != nil {
			if idx := l.indexOf(key); idx >= 0 {
				l.children = append(l.children[:idx], l.children[idx+1:]...)
				if node.Class.Kind == KindTab && node.Link.Selected && len(l.children) > 0 {
					next := idx - 1
					if next < 0 {
						next = 0
					}
					r.show(l.children[next])
				}
			}
		}
	}
	r.drop(node)
}

func (r *Registry) drop(node *Node) {
	for _, l := range node.lists {
		for _, child := range l.children {
			if c, ok := r.nodes[child]; ok {
				r.drop(c)
			}
		}
	}
	delete(r.nodes, node.Key)
}

func (r *Registry) show(key string) {
	if node, ok := r.nodes[key]; ok {
		node.Link.Selected = true
		node.Content.Hidden = false
	}
}

func (r *Registry) hide(key string) {
	if node, ok := r.nodes[key]; ok {
		node.Link.Selected = false
		node.Content.Hidden = true
	}
}

func (r *Registry) anySelected(l *childList) bool {
	if l == nil {
		return false
	}
	for _, child := range l.children {
		if node, ok := r.nodes[child]; ok && node.Link.Selected {
			return true
		}
	}
	return false
}

// Visible reports whether key and all of its ancestors are unhidden.
func (r *Registry) Visible(key string) bool {
	for {
		node, ok := r.nodes[key]
		if !ok {
			return false
		}
		if node.Content.Hidden {
			return false
		}
		if key == RootKey {
			return true
		}
		key = node.Parent
	}
}
