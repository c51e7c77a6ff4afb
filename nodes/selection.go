package nodes

import "fmt"

// ShowOrToggle applies a link click to key.
//
// Tabs: clicking an unselected tab selects it and hides its siblings; clicking
// the selected tab does nothing. Dropdowns toggle on their own.
func (r *Registry) ShowOrToggle(key string) error {
	node, ok := r.nodes[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, key)
	}
	if key == RootKey {
		return nil
	}

	switch node.Class.Kind {
	case KindDropdown:
		if node.Link.Selected {
			r.hide(key)
		} else {
			r.show(key)
		}
	default:
		if node.Link.Selected {
			return nil
		}
		if parent, ok := r.nodes[node.Parent]; ok {
			if l := parent.list(node.Class.Tag); l != nil {
				for _, sibling := range l.children {
					if sibling != key {
						r.hide(sibling)
					}
				}
			}
		}
		r.show(key)
	}
	return nil
}
