package rsrc

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// Dump renders the map as a tree: one branch per type, one node per
// resource with its ID, name, attributes and payload size.
func (m *Map) Dump(title string) string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s (data 0x%X+0x%X, map 0x%X+0x%X)", title, m.DataOffset, m.DataLength, m.MapOffset, m.MapLength))
	for _, tl := range m.types {
		branch := tree.AddBranch(fmt.Sprintf("'%s' x%d", tl.kind, len(tl.refs)))
		for _, ref := range tl.refs {
			size := "?"
			if data, err := m.Data(ref); err == nil {
				size = fmt.Sprintf("%d bytes", len(data))
			}
			line := fmt.Sprintf("ID %d, attrs 0x%02X, data 0x%06X, %s", int16(ref.ID), ref.Attrs, ref.DataOffset, size)
			if ref.Name != nil {
				line += fmt.Sprintf(", name %q", ref.Name)
			}
			if ref.Handle != 0 {
				line += fmt.Sprintf(", loaded 0x%08X", ref.Handle)
			}
			branch.AddNode(line)
		}
	}
	return tree.String()
}
