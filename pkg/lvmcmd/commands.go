package lvmcmd

import (
	"fmt"
	"sort"
	"strings"
)

// Options is the a{sv} option map every mutating RPC method carries.
// Keys starting with "-" are passed verbatim, anything else becomes
// --key. An empty value means flag-only.
type Options map[string]interface{}

// CliArgs renders the option map deterministically (sorted keys).
func (o Options) CliArgs() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rc []string
	for _, k := range keys {
		if strings.HasPrefix(k, "-") {
			rc = append(rc, k)
		} else {
			rc = append(rc, "--"+k)
		}
		switch v := o[k].(type) {
		case nil:
		case string:
			if v != "" {
				rc = append(rc, v)
			}
		case bool:
			if v {
				rc = append(rc, "y")
			} else {
				rc = append(rc, "n")
			}
		default:
			rc = append(rc, fmt.Sprintf("%v", v))
		}
	}
	return rc
}

// reportDefaults are the arguments every report command carries.
func reportDefaults(cmd string, args []string) []string {
	c := []string{cmd, "--nosuffix", "--unbuffered", "--units", "b"}
	return append(c, args...)
}

func quoteTag(tag string) string { return "@" + tag }

// PvSegRange is a (pv object, start, end) physical extent range used by
// resize, move and create operations.
type PvSegRange struct {
	Name  string
	Start uint64
	End   uint64
}

// appendPvRange renders "dev" or "dev:start-end".
func appendPvRange(cmd []string, dev string, start, end uint64) []string {
	if start == 0 && end == 0 {
		return append(cmd, dev)
	}
	return append(cmd, fmt.Sprintf("%s:%d-%d", dev, start, end))
}

// AppendPvDestRanges appends each destination range to the command.
func AppendPvDestRanges(cmd []string, dests []PvSegRange) []string {
	for _, d := range dests {
		cmd = appendPvRange(cmd, d.Name, d.Start, d.End)
	}
	return cmd
}

// PV commands

func (e *Executor) PvCreate(createOptions Options, devices []string) (Response, error) {
	cmd := []string{"pvcreate", "-ff"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, devices...)
	return e.Call(cmd)
}

func (e *Executor) PvRemove(device string, removeOptions Options) (Response, error) {
	cmd := []string{"pvremove"}
	cmd = append(cmd, removeOptions.CliArgs()...)
	cmd = append(cmd, device)
	return e.Call(cmd)
}

func (e *Executor) PvResize(device string, sizeBytes uint64, resizeOptions Options) (Response, error) {
	cmd := []string{"pvresize"}
	cmd = append(cmd, resizeOptions.CliArgs()...)
	if sizeBytes != 0 {
		cmd = append(cmd, "--yes", "--setphysicalvolumesize", fmt.Sprintf("%dB", sizeBytes))
	}
	cmd = append(cmd, device)
	return e.Call(cmd)
}

func (e *Executor) PvAllocatable(device string, yes bool, allocationOptions Options) (Response, error) {
	yn := "n"
	if yes {
		yn = "y"
	}
	cmd := []string{"pvchange"}
	cmd = append(cmd, allocationOptions.CliArgs()...)
	cmd = append(cmd, "-x", yn, device)
	return e.Call(cmd)
}

func (e *Executor) PvScan(activate, cache bool, devicePaths []string,
	majorMinors [][2]int32, scanOptions Options) (Response, error) {
	cmd := []string{"pvscan"}
	cmd = append(cmd, scanOptions.CliArgs()...)
	if activate {
		cmd = append(cmd, "--activate", "ay")
	}
	if cache {
		cmd = append(cmd, "--cache")
		cmd = append(cmd, devicePaths...)
		for _, mm := range majorMinors {
			cmd = append(cmd, fmt.Sprintf("%d:%d", mm[0], mm[1]))
		}
	}
	return e.Call(cmd)
}

// Tag commands. what may be one name or several devices.

func (e *Executor) tag(operation string, what []string, add, del []string, tagOptions Options) (Response, error) {
	cmd := []string{operation}
	cmd = append(cmd, tagOptions.CliArgs()...)
	cmd = append(cmd, what...)
	for _, t := range add {
		cmd = append(cmd, "--addtag", quoteTag(t))
	}
	for _, t := range del {
		cmd = append(cmd, "--deltag", quoteTag(t))
	}
	return e.Call(cmd)
}

func (e *Executor) PvTag(pvDevices []string, add, del []string, tagOptions Options) (Response, error) {
	return e.tag("pvchange", pvDevices, add, del, tagOptions)
}

func (e *Executor) VgTag(vgName string, add, del []string, tagOptions Options) (Response, error) {
	return e.tag("vgchange", []string{vgName}, add, del, tagOptions)
}

func (e *Executor) LvTag(lvName string, add, del []string, tagOptions Options) (Response, error) {
	return e.tag("lvchange", []string{lvName}, add, del, tagOptions)
}

// VG commands

func (e *Executor) VgCreate(createOptions Options, pvDevices []string, name string) (Response, error) {
	cmd := []string{"vgcreate"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, name)
	cmd = append(cmd, pvDevices...)
	return e.Call(cmd)
}

func (e *Executor) VgRename(vgUUID, newName string, renameOptions Options) (Response, error) {
	cmd := []string{"vgrename"}
	cmd = append(cmd, renameOptions.CliArgs()...)
	cmd = append(cmd, vgUUID, newName)
	return e.Call(cmd)
}

func (e *Executor) VgRemove(vgName string, removeOptions Options) (Response, error) {
	cmd := []string{"vgremove"}
	cmd = append(cmd, removeOptions.CliArgs()...)
	cmd = append(cmd, "-f", vgName)
	return e.Call(cmd)
}

func (e *Executor) VgChange(changeOptions Options, name string) (Response, error) {
	cmd := []string{"vgchange"}
	cmd = append(cmd, changeOptions.CliArgs()...)
	cmd = append(cmd, name)
	return e.Call(cmd)
}

func (e *Executor) VgReduce(vgName string, missing bool, pvDevices []string, reduceOptions Options) (Response, error) {
	cmd := []string{"vgreduce"}
	cmd = append(cmd, reduceOptions.CliArgs()...)
	if missing {
		cmd = append(cmd, "--removemissing")
	} else if len(pvDevices) == 0 {
		cmd = append(cmd, "--all")
	}
	cmd = append(cmd, vgName)
	cmd = append(cmd, pvDevices...)
	return e.Call(cmd)
}

func (e *Executor) VgExtend(vgName string, extendDevices []string, extendOptions Options) (Response, error) {
	cmd := []string{"vgextend"}
	cmd = append(cmd, extendOptions.CliArgs()...)
	cmd = append(cmd, vgName)
	cmd = append(cmd, extendDevices...)
	return e.Call(cmd)
}

func (e *Executor) vgValueSet(name string, arguments []string, options Options) (Response, error) {
	cmd := []string{"vgchange"}
	cmd = append(cmd, options.CliArgs()...)
	cmd = append(cmd, name)
	cmd = append(cmd, arguments...)
	return e.Call(cmd)
}

func (e *Executor) VgAllocationPolicy(vgName, policy string, policyOptions Options) (Response, error) {
	return e.vgValueSet(vgName, []string{"--alloc", policy}, policyOptions)
}

func (e *Executor) VgMaxPv(vgName string, number uint64, maxOptions Options) (Response, error) {
	return e.vgValueSet(vgName, []string{"--maxphysicalvolumes", fmt.Sprintf("%d", number)}, maxOptions)
}

func (e *Executor) VgMaxLv(vgName string, number uint64, maxOptions Options) (Response, error) {
	return e.vgValueSet(vgName, []string{"-l", fmt.Sprintf("%d", number)}, maxOptions)
}

func (e *Executor) VgUuidGen(vgName string, options Options) (Response, error) {
	return e.vgValueSet(vgName, []string{"--uuid"}, options)
}

// LV creation

func (e *Executor) VgLvCreate(vgName string, createOptions Options, name string,
	sizeBytes uint64, pvDests []PvSegRange) (Response, error) {
	cmd := []string{"lvcreate"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, "--size", fmt.Sprintf("%dB", sizeBytes))
	cmd = append(cmd, "--name", name, vgName, "--yes")
	cmd = AppendPvDestRanges(cmd, pvDests)
	return e.Call(cmd)
}

func (e *Executor) VgLvSnapshot(lvFullName string, snapshotOptions Options,
	name string, sizeBytes uint64) (Response, error) {
	cmd := []string{"lvcreate"}
	cmd = append(cmd, snapshotOptions.CliArgs()...)
	cmd = append(cmd, "-s")
	if sizeBytes != 0 {
		cmd = append(cmd, "--size", fmt.Sprintf("%dB", sizeBytes))
	}
	cmd = append(cmd, "--name", name, lvFullName)
	return e.Call(cmd)
}

func lvCreateCommonCmd(createOptions Options, sizeBytes uint64, thinPool bool) []string {
	cmd := []string{"lvcreate"}
	cmd = append(cmd, createOptions.CliArgs()...)
	if thinPool {
		cmd = append(cmd, "--thin", "--size", fmt.Sprintf("%dB", sizeBytes))
	} else {
		cmd = append(cmd, "--size", fmt.Sprintf("%dB", sizeBytes))
	}
	return append(cmd, "--yes")
}

func (e *Executor) VgLvCreateLinear(vgName string, createOptions Options, name string,
	sizeBytes uint64, thinPool bool) (Response, error) {
	cmd := lvCreateCommonCmd(createOptions, sizeBytes, thinPool)
	cmd = append(cmd, "--name", name, vgName)
	return e.Call(cmd)
}

func (e *Executor) VgLvCreateStriped(vgName string, createOptions Options, name string,
	sizeBytes uint64, numStripes, stripeSizeKB uint32, thinPool bool) (Response, error) {
	cmd := lvCreateCommonCmd(createOptions, sizeBytes, thinPool)
	cmd = append(cmd, "--stripes", fmt.Sprintf("%d", numStripes))
	if stripeSizeKB != 0 {
		cmd = append(cmd, "--stripesize", fmt.Sprintf("%d", stripeSizeKB))
	}
	cmd = append(cmd, "--name", name, vgName)
	return e.Call(cmd)
}

func (e *Executor) VgLvCreateRaid(vgName string, createOptions Options, name, raidType string,
	sizeBytes uint64, numStripes, stripeSizeKB uint32) (Response, error) {
	cmd := []string{"lvcreate"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, "--type", raidType)
	cmd = append(cmd, "--size", fmt.Sprintf("%dB", sizeBytes))
	if numStripes != 0 {
		cmd = append(cmd, "--stripes", fmt.Sprintf("%d", numStripes))
	}
	if stripeSizeKB != 0 {
		cmd = append(cmd, "--stripesize", fmt.Sprintf("%d", stripeSizeKB))
	}
	cmd = append(cmd, "--name", name, vgName, "--yes")
	return e.Call(cmd)
}

func (e *Executor) VgLvCreateMirror(vgName string, createOptions Options, name string,
	sizeBytes uint64, numCopies uint32) (Response, error) {
	cmd := []string{"lvcreate"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, "--type", "mirror")
	cmd = append(cmd, "--mirrors", fmt.Sprintf("%d", numCopies))
	cmd = append(cmd, "--size", fmt.Sprintf("%dB", sizeBytes))
	cmd = append(cmd, "--name", name, vgName, "--yes")
	return e.Call(cmd)
}

func (e *Executor) VgCreateCachePool(mdFullName, dataFullName string, createOptions Options) (Response, error) {
	cmd := []string{"lvconvert"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, "--type", "cache-pool", "--force", "-y",
		"--poolmetadata", mdFullName, dataFullName)
	return e.Call(cmd)
}

func (e *Executor) VgCreateThinPool(mdFullName, dataFullName string, createOptions Options) (Response, error) {
	cmd := []string{"lvconvert"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, "--type", "thin-pool", "--force", "-y",
		"--poolmetadata", mdFullName, dataFullName)
	return e.Call(cmd)
}

func (e *Executor) VgCreateVdoPoolLvAndLv(vgName, poolName, lvName string,
	dataSize, virtualSize uint64, createOptions Options) (Response, error) {
	cmd := []string{"lvcreate"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, "-y", "--type", "vdo", "-n", lvName,
		"-L", fmt.Sprintf("%dB", dataSize), "-V", fmt.Sprintf("%dB", virtualSize),
		fmt.Sprintf("%s/%s", vgName, poolName))
	return e.Call(cmd)
}

func (e *Executor) VgCreateVdoPool(poolFullName, lvName string, virtualSize uint64,
	createOptions Options) (Response, error) {
	cmd := []string{"lvconvert"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, "--type", "vdo-pool", "-n", lvName, "--force", "-y",
		"-V", fmt.Sprintf("%dB", virtualSize), poolFullName)
	return e.Call(cmd)
}

// LV commands

func (e *Executor) LvRemove(lvFullName string, removeOptions Options) (Response, error) {
	cmd := []string{"lvremove"}
	cmd = append(cmd, removeOptions.CliArgs()...)
	cmd = append(cmd, "-f", lvFullName)
	return e.Call(cmd)
}

func (e *Executor) LvRename(lvFullName, newName string, renameOptions Options) (Response, error) {
	cmd := []string{"lvrename"}
	cmd = append(cmd, renameOptions.CliArgs()...)
	cmd = append(cmd, lvFullName, newName)
	return e.Call(cmd)
}

// LvResize applies a size delta; negative shrinks.
func (e *Executor) LvResize(lvFullName string, sizeChange int64,
	pvDests []PvSegRange, resizeOptions Options) (Response, error) {
	cmd := []string{"lvresize", "--force"}
	cmd = append(cmd, resizeOptions.CliArgs()...)
	if sizeChange < 0 {
		cmd = append(cmd, fmt.Sprintf("-L-%dB", -sizeChange))
	} else {
		cmd = append(cmd, fmt.Sprintf("-L+%dB", sizeChange))
	}
	cmd = append(cmd, lvFullName)
	cmd = AppendPvDestRanges(cmd, pvDests)
	return e.Call(cmd)
}

// LvLvCreate creates a thin volume inside a thin pool.
func (e *Executor) LvLvCreate(lvFullName string, createOptions Options,
	name string, sizeBytes uint64) (Response, error) {
	cmd := []string{"lvcreate"}
	cmd = append(cmd, createOptions.CliArgs()...)
	cmd = append(cmd, "--virtualsize", fmt.Sprintf("%dB", sizeBytes), "-T")
	cmd = append(cmd, "--name", name, lvFullName, "--yes")
	return e.Call(cmd)
}

// LvCacheLv attaches a cache pool to an LV:
// lvconvert --type cache --cachepool VG/CachePoolLV VG/OriginLV
func (e *Executor) LvCacheLv(cachePoolFullName, lvFullName string, cacheOptions Options) (Response, error) {
	cmd := []string{"lvconvert"}
	cmd = append(cmd, cacheOptions.CliArgs()...)
	cmd = append(cmd, "-y", "--type", "cache", "--cachepool",
		cachePoolFullName, lvFullName)
	return e.Call(cmd)
}

func (e *Executor) LvDetachCache(lvFullName string, detachOptions Options, destroyCache bool) (Response, error) {
	option := "--splitcache"
	if destroyCache {
		option = "--uncache"
	}
	cmd := []string{"lvconvert"}
	cmd = append(cmd, detachOptions.CliArgs()...)
	// needed to prevent interactive questions
	cmd = append(cmd, "--yes", "--force")
	cmd = append(cmd, option, lvFullName)
	return e.Call(cmd)
}

func (e *Executor) LvVdoCompression(lvFullName string, enable bool, compOptions Options) (Response, error) {
	return e.lvVdoToggle("--compression", lvFullName, enable, compOptions)
}

func (e *Executor) LvVdoDeduplication(lvFullName string, enable bool, dedupOptions Options) (Response, error) {
	return e.lvVdoToggle("--deduplication", lvFullName, enable, dedupOptions)
}

func (e *Executor) lvVdoToggle(flag, lvFullName string, enable bool, options Options) (Response, error) {
	yn := "n"
	if enable {
		yn = "y"
	}
	cmd := []string{"lvchange", flag, yn}
	cmd = append(cmd, options.CliArgs()...)
	cmd = append(cmd, lvFullName)
	return e.Call(cmd)
}

// Activation control flag bits carried by Activate/Deactivate.
const (
	ActivateAuto         = 1 << 0
	ActivateExclusive    = 1 << 1
	ActivateLocal        = 1 << 2
	ActivateModeComplete = 1 << 3
	ActivateModePartial  = 1 << 4
	ActivateIgnoreSkip   = 1 << 5
	ActivateShared       = 1 << 6
)

// ActivateDeactivate runs lvchange/vgchange -a with the control flag bits
// decoded into the activation mode string.
func (e *Executor) ActivateDeactivate(op, name string, activate bool,
	controlFlags uint64, options Options) (Response, error) {
	cmd := []string{op}
	cmd = append(cmd, options.CliArgs()...)

	mode := "-a"
	if controlFlags&ActivateAuto != 0 {
		mode += "a"
	}
	if controlFlags&ActivateExclusive != 0 {
		mode += "e"
	}
	if controlFlags&ActivateLocal != 0 {
		mode += "l"
	}
	var modeArgs []string
	if controlFlags&ActivateModeComplete != 0 {
		modeArgs = append(modeArgs, "--activationmode", "complete")
	} else if controlFlags&ActivateModePartial != 0 {
		modeArgs = append(modeArgs, "--activationmode", "partial")
	}
	if controlFlags&ActivateIgnoreSkip != 0 {
		modeArgs = append(modeArgs, "--ignoreactivationskip")
	}
	if controlFlags&ActivateShared != 0 {
		mode += "s"
	}

	cmd = append(cmd, modeArgs...)
	if activate {
		mode += "y"
	} else {
		mode += "n"
	}
	cmd = append(cmd, mode, "-y", name)
	return e.Call(cmd)
}
