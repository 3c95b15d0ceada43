package datastore

import (
	"sort"
	"strconv"
	"strings"

	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
)

// parsePeRange parses one "dev:start-end" physical extent range as
// reported in seg_pe_ranges.
func parsePeRange(r string) (string, uint64, uint64, bool) {
	idx := strings.LastIndex(r, ":")
	if idx <= 0 {
		return "", 0, 0, false
	}
	dev := r[:idx]
	bounds := strings.SplitN(r[idx+1:], "-", 2)
	if len(bounds) != 2 {
		return "", 0, 0, false
	}
	start, err1 := strconv.ParseUint(bounds[0], 10, 64)
	end, err2 := strconv.ParseUint(bounds[1], 10, 64)
	if err1 != nil || err2 != nil {
		return "", 0, 0, false
	}
	return dev, start, end, true
}

// buildSnapshot folds one fullreport tree into the snapshot's row lists
// and containment indexes.
func buildSnapshot(root *lvmcmd.ReportRoot, vdoSupport bool) (*snapshot, error) {
	snap := emptySnapshot()

	lvCols := lvmcmd.LvColumns
	if vdoSupport {
		lvCols = append(append([]string{}, lvCols...), lvmcmd.LvVdoColumns...)
	}

	pvNameByUUID := map[string]string{}

	for _, sec := range root.Report {
		for _, pv := range sec.PV {
			if err := requireColumns(pv, lvmcmd.PvColumns); err != nil {
				return nil, err
			}
			uuid := pv["pv_uuid"]
			if _, seen := snap.pvByUUID[uuid]; seen {
				continue
			}
			snap.pvs = append(snap.pvs, pv)
			snap.pvByUUID[uuid] = pv
			snap.pvByName[pv["pv_name"]] = pv
			pvNameByUUID[uuid] = pv["pv_name"]
			if vgUUID := pv["vg_uuid"]; vgUUID != "" {
				snap.pvsInVG[vgUUID] = append(snap.pvsInVG[vgUUID],
					PvRef{Name: pv["pv_name"], UUID: uuid})
			}
		}

		for _, vg := range sec.VG {
			if err := requireColumns(vg, lvmcmd.VgColumns); err != nil {
				return nil, err
			}
			uuid := vg["vg_uuid"]
			if _, seen := snap.vgByUUID[uuid]; seen {
				continue
			}
			snap.vgs = append(snap.vgs, vg)
			snap.vgByUUID[uuid] = vg
			snap.vgByName[vg["vg_name"]] = vg
		}

		for _, lv := range sec.LV {
			if err := requireColumns(lv, lvCols); err != nil {
				return nil, err
			}
			uuid := lv["lv_uuid"]
			if _, seen := snap.lvByUUID[uuid]; seen {
				continue
			}
			name := lv["lv_name"]
			snap.lvs = append(snap.lvs, lv)
			snap.lvByUUID[uuid] = lv
			snap.lvByName[lv["vg_name"]+"/"+name] = lv

			ref := LvRef{
				Name:   name,
				UUID:   uuid,
				Attr:   lv["lv_attr"],
				Layout: lv["lv_layout"],
				Role:   lv["lv_role"],
			}
			if strings.HasPrefix(name, "[") {
				if parent := lv["lv_parent"]; parent != "" {
					snap.hiddenByParent[lv["vg_name"]+"/"+parent] = append(
						snap.hiddenByParent[lv["vg_name"]+"/"+parent], ref)
				}
			} else {
				snap.lvsInVG[lv["vg_uuid"]] = append(snap.lvsInVG[lv["vg_uuid"]], ref)
			}
		}

		for _, seg := range sec.Seg {
			if err := requireColumns(seg, lvmcmd.LvSegColumns); err != nil {
				return nil, err
			}
			lvUUID := seg["lv_uuid"]
			segType := seg["segtype"]

			found := false
			for _, st := range snap.lvSegTypes[lvUUID] {
				if st == segType {
					found = true
					break
				}
			}
			if !found {
				snap.lvSegTypes[lvUUID] = append(snap.lvSegTypes[lvUUID], segType)
			}

			for _, pe := range strings.Fields(seg["seg_pe_ranges"]) {
				dev, start, end, ok := parsePeRange(pe)
				if !ok {
					continue
				}
				appendContained(snap, lvUUID, dev, Seg{Start: start, End: end, SegType: segType})
			}
		}

		for _, pvseg := range sec.PVSeg {
			if err := requireColumns(pvseg, lvmcmd.PvSegColumns); err != nil {
				return nil, err
			}
			pvUUID := pvseg["pv_uuid"]
			seg := Seg{
				Start:   U64(pvseg, "pvseg_start"),
				End:     U64(pvseg, "pvseg_start") + U64(pvseg, "pvseg_size"),
				SegType: pvseg["segtype"],
			}
			snap.pvSegs[pvUUID] = append(snap.pvSegs[pvUUID], seg)
			if lvUUID := pvseg["lv_uuid"]; lvUUID != "" {
				appendByName(snap.pvContainedLV, pvUUID, lvUUID, seg)
			}
		}
	}

	// The hidden index is keyed "vg/parent"; re-key it by the parent's
	// uuid now that all LVs are known.
	rekeyed := map[string][]LvRef{}
	for fullName, children := range snap.hiddenByParent {
		if parent, ok := snap.lvByName[fullName]; ok {
			rekeyed[parent["lv_uuid"]] = children
		}
	}
	snap.hiddenByParent = rekeyed

	// The PV containment index is keyed by lv uuid in the entry; fill in
	// the LV names now that all LVs are known.
	for pvUUID, contained := range snap.pvContainedLV {
		for i := range contained {
			if lv, ok := snap.lvByUUID[contained[i].UUID]; ok {
				contained[i].Name = lv["vg_name"] + "/" + lv["lv_name"]
			}
		}
		snap.pvContainedLV[pvUUID] = contained
	}

	// Resolve contained-PV device names to uuids and order them so
	// property reads are stable.
	for lvUUID, contained := range snap.lvContainedPV {
		for i := range contained {
			if pv, ok := snap.pvByName[contained[i].Name]; ok {
				contained[i].UUID = pv["pv_uuid"]
			}
		}
		sort.Slice(contained, func(i, j int) bool {
			return contained[i].Name < contained[j].Name
		})
		snap.lvContainedPV[lvUUID] = contained
	}

	return snap, nil
}

// appendByName groups a segment under key, keyed internally by the
// counterpart's uuid.
func appendByName(index map[string][]ContainedPv, key, uuid string, seg Seg) {
	contained := index[key]
	for i := range contained {
		if contained[i].UUID == uuid {
			contained[i].Segs = append(contained[i].Segs, seg)
			index[key] = contained
			return
		}
	}
	index[key] = append(contained, ContainedPv{UUID: uuid, Segs: []Seg{seg}})
}

func appendContained(snap *snapshot, lvUUID, dev string, seg Seg) {
	contained := snap.lvContainedPV[lvUUID]
	for i := range contained {
		if contained[i].Name == dev {
			contained[i].Segs = append(contained[i].Segs, seg)
			snap.lvContainedPV[lvUUID] = contained
			return
		}
	}
	snap.lvContainedPV[lvUUID] = append(contained, ContainedPv{Name: dev, Segs: []Seg{seg}})
}
