package document

// ChildrenFunc returns the children of a node in the order they should be
// visited.
type ChildrenFunc func(v Value) []Value

// DefaultChildren visits list elements by index and map fields by sorted key.
func DefaultChildren(v Value) []Value {
	switch v.kind {
	case List:
		return v.Items()
	case Map:
		keys := v.Keys()
		out := make([]Value, 0, len(keys))
		for _, k := range keys {
			out = append(out, v.obj.fields[k])
		}
		return out
	default:
		return nil
	}
}

// Walk performs a breadth-first traversal from root. Container nodes are
// visited at most once, keyed by identity, so shared or self-referential
// subtrees terminate. visit returns false to stop the walk.
func Walk(root Value, children ChildrenFunc, visit func(v Value) bool) {
	if children == nil {
		children = DefaultChildren
	}
	seen := make(map[any]struct{})
	queue := []Value{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if id := cur.identity(); id != nil {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
		}
		if !visit(cur) {
			return
		}
		for _, child := range children(cur) {
			if child.kind == List || child.kind == Map {
				queue = append(queue, child)
			}
		}
	}
}
