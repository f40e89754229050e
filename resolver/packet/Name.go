package packet

import (
	"slices"
	"strings"
)

// MaxNameLen is the longest expanded name accepted, terminator included.
const MaxNameLen = 255

// ReadName decodes the name starting at off and returns it in expanded wire form
// together with the offset just past the name's encoding at off.
//
// When the name ends in a compression pointer, only the two pointer bytes count
// towards the returned offset, however long the name the pointer leads to.
// Every pointer target is remembered; seeing one twice means the chain loops.
func ReadName(msg []byte, off int) (name []byte, next int, err error) {
	var visited []int
	name = make([]byte, 0, 32)
	next = -1
	cur := off

	for {
		if cur >= len(msg) {
			return nil, 0, ErrTruncated
		}

		c := int(msg[cur])
		switch c & 0xc0 {
		case 0x00:
			if c == 0 {
				name = append(name, 0)
				if next < 0 {
					next = cur + 1
				}
				return name, next, nil
			}
			end := cur + 1 + c
			if end > len(msg) {
				return nil, 0, ErrTruncated
			}
			// Leave room for the terminator.
			if len(name)+1+c >= MaxNameLen {
				return nil, 0, ErrNameTooLong
			}
			name = append(name, msg[cur:end]...)
			cur = end

		case 0xc0:
			if cur+1 >= len(msg) {
				return nil, 0, ErrTruncated
			}
			ptr := (c&0x3f)<<8 | int(msg[cur+1])
			if next < 0 {
				next = cur + 2
			}
			if ptr >= len(msg) {
				return nil, 0, ErrBadPointer
			}
			if slices.Contains(visited, ptr) {
				return nil, 0, ErrPointerLoop
			}
			visited = append(visited, ptr)
			cur = ptr

		default:
			return nil, 0, ErrBadLabel
		}
	}
}

// NameString renders an expanded wire name as dotted text. It is meant for logs.
func NameString(name []byte) string {
	if len(name) == 0 || name[0] == 0 {
		return "."
	}

	var sb strings.Builder
	sb.Grow(len(name))
	for i := 0; i < len(name); {
		n := int(name[i])
		if n == 0 {
			break
		}
		i++
		end := min(i+n, len(name))
		sb.Write(name[i:end])
		sb.WriteByte('.')
		i = end
	}
	return sb.String()
}
