package model

import (
	"regexp"
	"strings"

	"github.com/openlvm/lvmdbusd/pkg/faults"
)

var (
	nameRe = regexp.MustCompile(`^[a-zA-Z0-9_+.][a-zA-Z0-9_+.\-]*$`)
	tagRe  = regexp.MustCompile(`^[a-zA-Z0-9_+.\-]+$`)
)

// ValidateDevicePath rejects device arguments that are not absolute
// paths.
func ValidateDevicePath(iface, device string) error {
	if !strings.HasPrefix(device, "/") {
		return faults.NewClient(iface, "device path %q is not an absolute path", device)
	}
	return nil
}

// ValidateName rejects vg/lv names lvm would refuse or mangle.
func ValidateName(iface, name string) error {
	if name == "" || !nameRe.MatchString(name) {
		return faults.NewClient(iface, "name %q contains invalid characters", name)
	}
	if name == "." || name == ".." {
		return faults.NewClient(iface, "name %q is reserved", name)
	}
	return nil
}

// ValidateTags rejects malformed tag lists.
func ValidateTags(iface string, tags []string) error {
	for _, t := range tags {
		if !tagRe.MatchString(t) {
			return faults.NewClient(iface, "tag %q contains invalid characters", t)
		}
	}
	return nil
}

// parseTags splits the comma separated tag column.
func parseTags(tags string) []string {
	if tags == "" {
		return []string{}
	}
	return strings.Split(tags, ",")
}

// roundSize rounds a byte count up to a 512 byte boundary.
func roundSize(sizeBytes uint64) uint64 {
	const block = 512
	if rem := sizeBytes % block; rem != 0 {
		return sizeBytes + block - rem
	}
	return sizeBytes
}
