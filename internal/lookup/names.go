package lookup

import "strings"

// SplitName splits a listing name on its first space. Text before the space is
// the first name, the remainder (left-trimmed) is the last name. A name without
// a space is treated entirely as a last name.
func SplitName(full string) (first, last string) {
	idx := strings.Index(full, " ")
	if idx < 0 {
		return "", full
	}
	return full[:idx], strings.TrimLeft(full[idx+1:], " ")
}
