package mock

import (
	"bytes"
	"fmt"
)

type ArMember struct {
	Name string
	Data []byte
}

func arHeader(b *bytes.Buffer, name string, size int) {
	fmt.Fprintf(b, "%-16s%-12d%-6d%-6d%-8o%-10d`\n", name, 0, 0, 0, 0644, size)
}

func arData(b *bytes.Buffer, p []byte) {
	b.Write(p)
	if len(p)%2 == 1 {
		b.WriteByte('\n')
	}
}

// GNUArchive writes a System V/GNU archive with a symbol index and a "//"
// long name table for names over 15 bytes.
func GNUArchive(members ...ArMember) []byte {
	var b, long bytes.Buffer
	names := make([]string, len(members))
	for i, m := range members {
		if len(m.Name) > 15 {
			names[i] = fmt.Sprintf("/%d", long.Len())
			long.WriteString(m.Name + "/\n")
		} else {
			names[i] = m.Name + "/"
		}
	}
	b.WriteString("!<arch>\n")
	arHeader(&b, "/", 4)
	arData(&b, []byte{0, 0, 0, 0})
	if long.Len() > 0 {
		arHeader(&b, "//", long.Len())
		arData(&b, long.Bytes())
	}
	for i, m := range members {
		arHeader(&b, names[i], len(m.Data))
		arData(&b, m.Data)
	}
	return b.Bytes()
}

// BSDArchive writes a BSD archive where every name is stored as #1/<len>
// ahead of the member data.
func BSDArchive(members ...ArMember) []byte {
	var b bytes.Buffer
	b.WriteString("!<arch>\n")
	symdef := "__.SYMDEF SORTED"
	arHeader(&b, fmt.Sprintf("#1/%d", len(symdef)), len(symdef)+4)
	arData(&b, append([]byte(symdef), 0, 0, 0, 0))
	for _, m := range members {
		arHeader(&b, fmt.Sprintf("#1/%d", len(m.Name)), len(m.Name)+len(m.Data))
		arData(&b, append([]byte(m.Name), m.Data...))
	}
	return b.Bytes()
}
