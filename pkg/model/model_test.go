package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLvKindSelection(t *testing.T) {
	tests := []struct {
		name     string
		vdo      bool
		lvName   string
		attr     string
		layout   string
		origin   string
		segtypes []string
		want     string
	}{
		{name: "hidden", lvName: "[pool_tdata]", attr: "Twi-ao----", want: KindLvHidden},
		{name: "thin pool", lvName: "pool", attr: "twi-a-tz--", layout: "pool,thin", want: KindLvThinPool},
		{name: "cache pool", lvName: "cpool", attr: "Cwi---C---", layout: "pool,cache", want: KindLvCachePool},
		{name: "cached lv", lvName: "fast", attr: "Cwi-a-C---", layout: "cache", want: KindLvCachedLv},
		{name: "snapshot", lvName: "snap", attr: "swi-a-s---", origin: "lv1", want: KindLvSnapshot},
		{name: "plain", lvName: "lv1", attr: "-wi-a-----", want: KindLvPlain},
		{name: "vdo pool", vdo: true, lvName: "vpool", attr: "dwi-------", segtypes: []string{"vdo-pool"}, want: KindLvVdoPool},
		{name: "vdo lv", vdo: true, lvName: "vlv", attr: "vwi-a-v---", segtypes: []string{"vdo"}, want: KindLvVdoLv},
		{name: "vdo ignored without support", vdo: false, lvName: "vlv", attr: "vwi-a-v---", segtypes: []string{"vdo"}, want: KindLvPlain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lvKind(tt.vdo, tt.lvName, tt.attr, tt.layout, tt.origin, tt.segtypes)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLvInterfacesPerKind(t *testing.T) {
	// Hidden LVs expose only the common interface; pools add their
	// variant interface on top of the base pair.
	assert.Len(t, lvInterfaces(KindLvHidden), 1)
	assert.Len(t, lvInterfaces(KindLvPlain), 2)
	assert.Len(t, lvInterfaces(KindLvThinPool), 3)
	assert.Len(t, lvInterfaces(KindLvSnapshot), 3)
}

func TestAttrDecode(t *testing.T) {
	d := attrDecode("-wi-a-----", 0, volumeTypeMap)
	assert.Equal(t, "-", d.Code)
	assert.Equal(t, "Unspecified", d.Desc)

	d = attrDecode("twi-a-tz--", 0, volumeTypeMap)
	assert.Equal(t, "t", d.Code)
	assert.Equal(t, "thin pool", d.Desc)

	d = attrDecode("-wi-a-----", 1, permissionsMap)
	assert.Equal(t, "w", d.Code)
	assert.Equal(t, "writable", d.Desc)

	// Short attr strings degrade to unspecified instead of panicking.
	d = attrDecode("", 8, healthMap)
	assert.Equal(t, "-", d.Code)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("test.iface", "vg00"))
	assert.NoError(t, ValidateName("test.iface", "my-lv_1.2+x"))
	assert.Error(t, ValidateName("test.iface", ""))
	assert.Error(t, ValidateName("test.iface", "has space"))
	assert.Error(t, ValidateName("test.iface", "has/slash"))
	assert.Error(t, ValidateName("test.iface", "-leadingdash"))
	assert.Error(t, ValidateName("test.iface", ".."))
}

func TestValidateTags(t *testing.T) {
	assert.NoError(t, ValidateTags("test.iface", []string{"hot", "tier-1", "a.b_c+d"}))
	assert.Error(t, ValidateTags("test.iface", []string{"bad tag"}))
	assert.Error(t, ValidateTags("test.iface", []string{"bad@tag"}))
}

func TestValidateDevicePath(t *testing.T) {
	assert.NoError(t, ValidateDevicePath("test.iface", "/dev/sda"))
	assert.Error(t, ValidateDevicePath("test.iface", "sda"))
}

func TestRoundSize(t *testing.T) {
	assert.Equal(t, uint64(0), roundSize(0))
	assert.Equal(t, uint64(512), roundSize(1))
	assert.Equal(t, uint64(512), roundSize(512))
	assert.Equal(t, uint64(1024), roundSize(513))
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{}, parseTags(""))
	assert.Equal(t, []string{"a", "b"}, parseTags("a,b"))
}
