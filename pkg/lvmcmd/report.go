package lvmcmd

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Row is one record of an lvm report section. lvm emits every value as a
// string; numeric conversion happens at the point of use.
type Row map[string]string

// ReportSection is one per-VG (or orphan) slice of a fullreport.
type ReportSection struct {
	PV    []Row `json:"pv"`
	PVSeg []Row `json:"pvseg"`
	VG    []Row `json:"vg"`
	LV    []Row `json:"lv"`
	Seg   []Row `json:"seg"`
	Log   []Row `json:"log"`
}

// ReportRoot is the top level object lvm prints with --reportformat json.
type ReportRoot struct {
	Report []ReportSection `json:"report"`
	Log    []Row           `json:"log"`
}

// parseReport attempts to decode stdout as an lvm JSON report. Some lvm
// commands ignore the JSON request and print plain text; those return
// (nil, false).
func parseReport(stdout string) (*ReportRoot, bool) {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var root ReportRoot
	if err := json.UnmarshalFromString(trimmed, &root); err != nil {
		return nil, false
	}
	return &root, true
}

// errorMessage collects the messages of error-typed entries in the
// report's command log. lvm embeds its diagnostics there when
// log/command_log_selection is configured; the executor appends them to
// stderr so callers see one error channel.
func errorMessage(root *ReportRoot) string {
	if root == nil {
		return ""
	}
	var msgs []string
	collect := func(rows []Row) {
		for _, r := range rows {
			if r["log_type"] == "error" && r["log_message"] != "" {
				msgs = append(msgs, r["log_message"])
			}
		}
	}
	collect(root.Log)
	for _, sec := range root.Report {
		collect(sec.Log)
	}
	if len(msgs) == 0 {
		return ""
	}
	return strings.Join(msgs, "\n")
}
