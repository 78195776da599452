package widget

// KeyTab is the only key the traversal reacts to
const KeyTab = "Tab"

// TabTraversal is the default FocusTraversal over an ordered field set
type TabTraversal struct{}

// FieldTab returns the field that receives focus after ev. When focus would
// leave the set, next is empty and reachedExtreme is true.
func (TabTraversal) FieldTab(ev KeyEvent, fields []FieldID) (FieldID, bool) {
	if ev.Key != KeyTab || len(fields) == 0 {
		return "", false
	}

	idx := -1
	for i, f := range fields {
		if f == ev.Focused {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}

	if ev.Shift {
		if idx == 0 {
			return "", true
		}
		return fields[idx-1], false
	}
	if idx == len(fields)-1 {
		return "", true
	}
	return fields[idx+1], false
}
