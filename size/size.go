// Package size implements a flag.Value for byte sizes such as "64mb".
package size

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size is a number of bytes
type Size int64

const (
	KB Size = 1 << (10 * (iota + 1))
	MB
	GB
	TB
)

// digits follow Go integer literal rules, so "0x10mb" and "1_024" are accepted
var sizeRegexp = regexp.MustCompile(`(?i)^((?:0b|0x|0o)?[\da-f_]+?)(kb|mb|gb|tb)?$`)

var units = map[string]Size{
	"kb": KB,
	"mb": MB,
	"gb": GB,
	"tb": TB,
}

// Parse converts a string like "42mb" into a Size
func Parse(s string) (Size, error) {
	m := sizeRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	n, err := strconv.ParseInt(m[1], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if unit, ok := units[strings.ToLower(m[2])]; ok {
		return Size(n) * unit, nil
	}
	return Size(n), nil
}

// Set is here so that Size can implement flag.Var
func (siz *Size) Set(s string) error {
	if s == "" {
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*siz = v
	return nil
}

// String prints the largest unit that divides the size exactly
func (siz Size) String() string {
	for _, u := range []struct {
		name string
		unit Size
	}{{"tb", TB}, {"gb", GB}, {"mb", MB}, {"kb", KB}} {
		if siz != 0 && siz%u.unit == 0 {
			return fmt.Sprintf("%d%s", siz/u.unit, u.name)
		}
	}
	return strconv.FormatInt(int64(siz), 10)
}
