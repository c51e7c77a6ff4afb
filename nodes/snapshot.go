package nodes

// View is a detached copy of a node for renderers.
type View struct {
	Key           string     `json:"key"`
	Label         string     `json:"label"`
	Kind          string     `json:"kind"`
	Class         string     `json:"class"`
	Selected      bool       `json:"selected"`
	Hidden        bool       `json:"hidden"`
	Disassociated bool       `json:"disassociated,omitempty"`
	Processing    bool       `json:"processing,omitempty"`
	Rows          []Row      `json:"rows,omitempty"`
	Lists         []ListView `json:"lists,omitempty"`
}

// ListView is a detached copy of one child list.
type ListView struct {
	Class       string `json:"class"`
	Kind        string `json:"kind"`
	Placeholder string `json:"placeholder,omitempty"`
	Items       []View `json:"items"`
}

// Snapshot returns a copy of the whole tree starting at the root.
func (r *Registry) Snapshot() View {
	view, _ := r.SnapshotFrom(RootKey)
	return view
}

// SnapshotFrom returns a copy of the subtree rooted at key.
func (r *Registry) SnapshotFrom(key string) (View, bool) {
	node, ok := r.nodes[key]
	if !ok {
		return View{}, false
	}
	return r.view(node), true
}

func (r *Registry) view(node *Node) View {
	v := View{
		Key:           node.Key,
		Label:         node.Link.Label,
		Kind:          node.Class.Kind.String(),
		Class:         node.Class.Tag,
		Selected:      node.Link.Selected,
		Hidden:        node.Content.Hidden,
		Disassociated: node.Link.Disassociated,
		Processing:    node.Link.Processing,
		Rows:          node.Content.Rows(),
	}
	for _, l := range node.lists {
		lv := ListView{
			Class: l.class.Tag,
			Kind:  l.class.Kind.String(),
			Items: make([]View, 0, len(l.children)),
		}
		if l.placeholder.Visible {
			lv.Placeholder = l.placeholder.Text
		}
		for _, child := range l.children {
			if c, ok := r.nodes[child]; ok {
				lv.Items = append(lv.Items, r.view(c))
			}
		}
		v.Lists = append(v.Lists, lv)
	}
	return v
}

// Walk visits every node below key depth first in structural order. Returning
// false from fn stops the descent into that node's children.
func (r *Registry) Walk(key string, fn func(*Node) bool) {
	node, ok := r.nodes[key]
	if !ok {
		return
	}
	if !fn(node) {
		return
	}
	for _, l := range node.lists {
		for _, child := range append([]string(nil), l.children...) {
			r.Walk(child, fn)
		}
	}
}
