package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// offsetSectorSize is the sector size assumed by the "s" offset suffix.
const offsetSectorSize = 512

// parseOffset accepts a byte offset in decimal or 0x hexadecimal, or a
// sector count with an "s" suffix.
func parseOffset(s string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, fmt.Errorf("empty offset")
	}

	mult := int64(1)
	if strings.HasSuffix(ss, "s") {
		mult = offsetSectorSize
		ss = strings.TrimSuffix(ss, "s")
	}

	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(ss, "0x") {
		v, err = strconv.ParseUint(strings.TrimPrefix(ss, "0x"), 16, 63)
	} else {
		v, err = strconv.ParseUint(ss, 10, 63)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: want decimal bytes, 0x hex bytes or <n>s sectors", s)
	}

	off := int64(v)
	if off > (1<<63-1)/mult {
		return 0, fmt.Errorf("offset %q is too large", s)
	}
	return off * mult, nil
}

// offsetValue is a pflag.Value holding a byte offset parsed by parseOffset.
type offsetValue int64

var _ pflag.Value = (*offsetValue)(nil)

func (o *offsetValue) String() string { return strconv.FormatInt(int64(*o), 10) }

func (o *offsetValue) Set(s string) error {
	v, err := parseOffset(s)
	if err != nil {
		return err
	}
	*o = offsetValue(v)
	return nil
}

func (o *offsetValue) Type() string { return "offset" }
