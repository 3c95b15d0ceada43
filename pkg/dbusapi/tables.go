package dbusapi

import (
	"github.com/godbus/dbus/v5"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/model"
)

// methodTables builds the per-interface method tables for an entity.
// The variant decides which interfaces exist; a method is only callable
// on paths whose variant carries it.
func (s *Service) methodTables(e Exported) map[string]map[string]interface{} {
	switch obj := e.(type) {
	case *model.Manager:
		return map[string]map[string]interface{}{
			config.ManagerInterface: s.managerTable(obj),
		}
	case *model.Pv:
		return map[string]map[string]interface{}{
			config.PvInterface: pvTable(obj),
		}
	case *model.Vg:
		rc := map[string]map[string]interface{}{
			config.VgInterface: vgTable(obj),
		}
		for _, iface := range obj.Interfaces() {
			if iface == config.VgVdoInterface {
				rc[config.VgVdoInterface] = vgVdoTable(obj)
			}
		}
		return rc
	case *model.Lv:
		return lvTables(obj)
	case *jobs.Job:
		return map[string]map[string]interface{}{
			config.JobInterface: s.jobTable(obj),
		}
	}
	return nil
}

func (s *Service) managerTable(m *model.Manager) map[string]interface{} {
	return map[string]interface{}{
		"PvCreate": func(device string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			m.PvCreate(device, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"VgCreate": func(name string, pvs []dbus.ObjectPath, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			paths := make([]string, len(pvs))
			for i, p := range pvs {
				paths[i] = string(p)
			}
			ch, cb, cbe := callbacks()
			m.VgCreate(name, paths, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"Refresh": func() (uint64, *dbus.Error) {
			ch, cb, cbe := callbacks()
			m.Refresh(cb, cbe)
			return awaitUint(ch)
		},
		"LookUpByLvmId": func(key string) (dbus.ObjectPath, *dbus.Error) {
			return dbus.ObjectPath(m.LookUpByLvmId(key)), nil
		},
		"UseLvmShell": func(yes bool) (bool, *dbus.Error) {
			return m.UseLvmShell(yes), nil
		},
		"ExternalEvent": func(command string) (int32, *dbus.Error) {
			return m.ExternalEvent(command), nil
		},
		"PvScan": func(activate, cache bool, devicePaths []string, majorMinors []majorMinor,
			tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			mms := make([][2]int32, len(majorMinors))
			for i, mm := range majorMinors {
				mms[i] = [2]int32{mm.Major, mm.Minor}
			}
			ch, cb, cbe := callbacks()
			m.PvScan(activate, cache, devicePaths, mms, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
	}
}

func pvTable(pv *model.Pv) map[string]interface{} {
	return map[string]interface{}{
		"Remove": func(tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			pv.Remove(tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"ReSize": func(newSize uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			pv.ReSize(newSize, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"AllocationEnabled": func(yes bool, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			pv.AllocationEnabled(yes, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
	}
}

func vgTable(vg *model.Vg) map[string]interface{} {
	simple := func(run func(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error))) func(int32, map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
		return func(tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			run(tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		}
	}

	return map[string]interface{}{
		"Rename": func(name string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.Rename(name, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"Remove": simple(vg.Remove),
		"Change": simple(vg.Change),
		"Reduce": func(missing bool, pvs []dbus.ObjectPath, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.Reduce(missing, pvs, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"Extend": func(pvs []dbus.ObjectPath, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.Extend(pvs, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"Move": func(pvSrc dbus.ObjectPath, src segTuple, dests []destTuple, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			p, err := vg.Move(pvSrc, src.Start, src.End, toDeviceRanges(dests), tmo, variantOpts(opts))
			if err != nil {
				return "/", toDBusError(err)
			}
			return dbus.ObjectPath(p), nil
		},
		"LvCreate": func(name string, size uint64, dests []destTuple, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.LvCreate(name, size, toDeviceRanges(dests), tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"LvCreateLinear": func(name string, size uint64, thinPool bool, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.LvCreateLinear(name, size, thinPool, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"LvCreateStriped": func(name string, size uint64, numStripes, stripeSizeKB uint32, thinPool bool, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.LvCreateStriped(name, size, numStripes, stripeSizeKB, thinPool, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"LvCreateMirror": func(name string, size uint64, numCopies uint32, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.LvCreateMirror(name, size, numCopies, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"LvCreateRaid": func(name, raidType string, size uint64, numStripes, stripeSizeKB uint32, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.LvCreateRaid(name, raidType, size, numStripes, stripeSizeKB, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"CreateCachePool": func(md, data dbus.ObjectPath, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.CreateCachePool(md, data, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"CreateThinPool": func(md, data dbus.ObjectPath, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.CreateThinPool(md, data, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"PvTagsAdd": func(pvs []dbus.ObjectPath, tags []string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.PvTagsAdd(pvs, tags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"PvTagsDel": func(pvs []dbus.ObjectPath, tags []string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.PvTagsDel(pvs, tags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"TagsAdd": func(tags []string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.TagsAdd(tags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"TagsDel": func(tags []string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.TagsDel(tags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"AllocationPolicySet": func(policy string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.AllocationPolicySet(policy, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"MaxPvSet": func(n uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.MaxPvSet(n, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"MaxLvSet": func(n uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.MaxLvSet(n, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"UuidGenerate": simple(vg.UuidGenerate),
		"Activate": func(flags uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.Activate(flags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"Deactivate": func(flags uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.Deactivate(flags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
	}
}

func vgVdoTable(vg *model.Vg) map[string]interface{} {
	return map[string]interface{}{
		"CreateVdoPoolandLv": func(poolName, lvName string, dataSize, virtualSize uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.CreateVdoPoolandLv(poolName, lvName, dataSize, virtualSize, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"CreateVdoPool": func(pool dbus.ObjectPath, name string, virtualSize uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			vg.CreateVdoPool(pool, name, virtualSize, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
	}
}

// lvTables assembles the interface→methods map for an LV according to
// its variant's capability set.
func lvTables(lv *model.Lv) map[string]map[string]interface{} {
	rc := map[string]map[string]interface{}{}

	for _, iface := range lv.Interfaces() {
		switch iface {
		case config.LvInterface:
			rc[config.LvInterface] = lvBaseTable(lv)
		case config.ThinPoolInterface:
			rc[config.ThinPoolInterface] = map[string]interface{}{
				"LvCreate": func(name string, size uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
					ch, cb, cbe := callbacks()
					lv.ThinLvCreate(name, size, tmo, variantOpts(opts), cb, cbe)
					return awaitPair(ch)
				},
			}
		case config.CachePoolInterface:
			rc[config.CachePoolInterface] = map[string]interface{}{
				"CacheLv": func(lvPath dbus.ObjectPath, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
					ch, cb, cbe := callbacks()
					lv.CacheLv(lvPath, tmo, variantOpts(opts), cb, cbe)
					return awaitPair(ch)
				},
			}
		case config.CachedLvInterface:
			rc[config.CachedLvInterface] = map[string]interface{}{
				"DetachCachePool": func(destroyCache bool, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
					ch, cb, cbe := callbacks()
					lv.DetachCachePool(destroyCache, tmo, variantOpts(opts), cb, cbe)
					return awaitPair(ch)
				},
			}
		case config.SnapshotInterface:
			rc[config.SnapshotInterface] = map[string]interface{}{
				"Merge": func(tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
					p, err := lv.Merge(tmo, variantOpts(opts))
					if err != nil {
						return "/", toDBusError(err)
					}
					return dbus.ObjectPath(p), nil
				},
			}
		case config.VdoPoolInterface:
			rc[config.VdoPoolInterface] = vdoPoolTable(lv)
		}
	}
	return rc
}

func lvBaseTable(lv *model.Lv) map[string]interface{} {
	return map[string]interface{}{
		"Remove": func(tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			lv.Remove(tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"Rename": func(name string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			lv.Rename(name, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"Resize": func(newSize uint64, dests []destTuple, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			lv.Resize(newSize, toDeviceRanges(dests), tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"Move": func(pvSrc dbus.ObjectPath, src segTuple, dests []destTuple, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			p, err := lv.Move(pvSrc, src.Start, src.End, toDeviceRanges(dests), tmo, variantOpts(opts))
			if err != nil {
				return "/", toDBusError(err)
			}
			return dbus.ObjectPath(p), nil
		},
		"Snapshot": func(name string, optionalSize uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			lv.Snapshot(name, optionalSize, tmo, variantOpts(opts), cb, cbe)
			return awaitPair(ch)
		},
		"Activate": func(flags uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			lv.Activate(flags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"Deactivate": func(flags uint64, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			lv.Deactivate(flags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"TagsAdd": func(tags []string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			lv.TagsAdd(tags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
		"TagsDel": func(tags []string, tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			lv.TagsDel(tags, tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		},
	}
}

func vdoPoolTable(lv *model.Lv) map[string]interface{} {
	toggle := func(run func(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error))) func(int32, map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
		return func(tmo int32, opts map[string]dbus.Variant) (dbus.ObjectPath, *dbus.Error) {
			ch, cb, cbe := callbacks()
			run(tmo, variantOpts(opts), cb, cbe)
			return awaitPath(ch)
		}
	}
	return map[string]interface{}{
		"EnableCompression":    toggle(lv.EnableCompression),
		"DisableCompression":   toggle(lv.DisableCompression),
		"EnableDeduplication":  toggle(lv.EnableDeduplication),
		"DisableDeduplication": toggle(lv.DisableDeduplication),
	}
}

func (s *Service) jobTable(j *jobs.Job) map[string]interface{} {
	return map[string]interface{}{
		"Wait": func(timeout int32) (bool, *dbus.Error) {
			return j.State().WaitSeconds(timeout), nil
		},
		"Remove": func() *dbus.Error {
			if err := s.jobsReg.Remove(j); err != nil {
				return toDBusError(err)
			}
			return nil
		},
	}
}
