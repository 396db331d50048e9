package bin

import (
	"strconv"
	"strings"
)

// Directive is one resolved "%<len><type>" field from a recorded format
// descriptor.
type Directive struct {
	Width int
	Type  byte
}

// ParseFormat splits a recorded format descriptor (as produced by
// Writer.Format, always concrete digit widths — never '*') into its
// component directives.
func ParseFormat(format string) ([]Directive, error) {
	var out []Directive
	v := format
	for {
		i := strings.IndexByte(v, '%')
		if i < 0 {
			break
		}
		v = v[i+1:]
		j := 0
		for j < len(v) && v[j] >= '0' && v[j] <= '9' {
			j++
		}
		if j == 0 {
			return nil, wrapf(ErrBadWidthDigit, "in %q", format)
		}
		width, err := strconv.Atoi(v[:j])
		if err != nil {
			return nil, wrapf(ErrBadWidthDigit, "in %q", format)
		}
		if j >= len(v) {
			return nil, wrapf(ErrUnknownType, "truncated directive in %q", format)
		}
		typ := v[j]
		out = append(out, Directive{Width: width, Type: typ})
		v = v[j+1:]
	}
	return out, nil
}
