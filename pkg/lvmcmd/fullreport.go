package lvmcmd

import (
	"strings"

	"github.com/openlvm/lvmdbusd/pkg/faults"
)

// Column sets requested from the fullreport. Fixed per entity kind; the
// VDO columns are appended only when VDO is supported.
var (
	PvColumns = []string{
		"pv_name", "pv_uuid", "pv_fmt", "pv_size", "pv_free",
		"pv_used", "dev_size", "pv_mda_size", "pv_mda_free",
		"pv_ba_start", "pv_ba_size", "pe_start", "pv_pe_count",
		"pv_pe_alloc_count", "pv_attr", "pv_tags", "vg_name",
		"vg_uuid", "pv_missing"}

	PvSegColumns = []string{
		"pvseg_start", "pvseg_size", "segtype",
		"pv_uuid", "lv_uuid", "pv_name"}

	VgColumns = []string{
		"vg_name", "vg_uuid", "vg_fmt", "vg_size", "vg_free",
		"vg_sysid", "vg_extent_size", "vg_extent_count",
		"vg_free_count", "vg_profile", "max_lv", "max_pv",
		"pv_count", "lv_count", "snap_count", "vg_seqno",
		"vg_mda_count", "vg_mda_free", "vg_mda_size",
		"vg_mda_used_count", "vg_attr", "vg_tags"}

	LvColumns = []string{
		"lv_uuid", "lv_name", "lv_path", "lv_size",
		"vg_name", "pool_lv_uuid", "pool_lv", "origin_uuid",
		"origin", "data_percent",
		"lv_attr", "lv_tags", "vg_uuid", "lv_active", "data_lv",
		"metadata_lv", "lv_parent", "lv_role", "lv_layout",
		"snap_percent", "metadata_percent", "copy_percent",
		"sync_percent", "lv_metadata_size", "move_pv", "move_pv_uuid"}

	LvSegColumns = []string{"seg_pe_ranges", "segtype", "lv_uuid"}

	LvVdoColumns = []string{
		"vdo_operating_mode", "vdo_compression_state", "vdo_index_state",
		"vdo_used_size", "vdo_saving_percent"}

	LvSegVdoColumns = []string{
		"vdo_compression", "vdo_deduplication",
		"vdo_use_metadata_hints", "vdo_minimum_io_size",
		"vdo_block_map_cache_size", "vdo_block_map_era_length",
		"vdo_use_sparse_index", "vdo_index_memory_size",
		"vdo_slab_size", "vdo_ack_threads", "vdo_bio_threads",
		"vdo_bio_rotation", "vdo_cpu_threads", "vdo_hash_zone_threads",
		"vdo_logical_threads", "vdo_physical_threads",
		"vdo_max_discard", "vdo_write_policy", "vdo_header_size"}
)

// FullReportExportedVG is the exit code lvm uses for a report that
// includes an exported VG; it is valid state, not a failure.
const FullReportExportedVG = 5

// FullReport runs the fullreport command and returns the parsed tree.
// Exit code 5 is accepted (exported VGs). Anything else, or output that
// is not valid JSON, is a tool bug.
func (e *Executor) FullReport(vdoSupport bool) (*ReportRoot, error) {
	lvCols := LvColumns
	segCols := LvSegColumns
	if vdoSupport {
		lvCols = append(append([]string{}, lvCols...), LvVdoColumns...)
		segCols = append(append([]string{}, segCols...), LvSegVdoColumns...)
	}

	cmd := reportDefaults("fullreport", []string{
		"-a", // Need hidden too
		"--configreport", "pv", "-o", strings.Join(PvColumns, ","),
		"--configreport", "vg", "-o", strings.Join(VgColumns, ","),
		"--configreport", "lv", "-o", strings.Join(lvCols, ","),
		"--configreport", "seg", "-o", strings.Join(segCols, ","),
		"--configreport", "pvseg", "-o", strings.Join(PvSegColumns, ","),
		"--reportformat", "json",
	})

	resp, err := e.Call(cmd)
	if err != nil {
		return nil, err
	}
	if resp.Interrupted() {
		return nil, faults.ErrShutdown
	}
	if resp.ExitCode != 0 && resp.ExitCode != FullReportExportedVG {
		return nil, faults.NewToolBug("'fullreport' exited with code '%d'", resp.ExitCode)
	}
	if resp.Report == nil {
		return nil, faults.NewToolBug(
			"lvm likely returned invalid JSON, lvm exit code = %d, output = %.200s, err = %.200s",
			resp.ExitCode, resp.Stdout, resp.Stderr)
	}
	return resp.Report, nil
}
