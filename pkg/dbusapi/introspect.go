package dbusapi

import (
	"github.com/godbus/dbus/v5/introspect"

	"github.com/openlvm/lvmdbusd/pkg/config"
)

func method(name string, args ...introspect.Arg) introspect.Method {
	return introspect.Method{Name: name, Args: args}
}

func in(name, sig string) introspect.Arg  { return introspect.Arg{Name: name, Type: sig, Direction: "in"} }
func out(name, sig string) introspect.Arg { return introspect.Arg{Name: name, Type: sig, Direction: "out"} }

func prop(name, sig string) introspect.Property {
	return introspect.Property{Name: name, Type: sig, Access: "read"}
}

// ifaceSpecs is the introspection description of every interface the
// daemon exports, keyed by interface name.
var ifaceSpecs = map[string]introspect.Interface{
	config.ManagerInterface: {
		Name: config.ManagerInterface,
		Methods: []introspect.Method{
			method("PvCreate", in("device", "s"), in("tmo", "i"), in("create_options", "a{sv}"),
				out("result", "(oo)")),
			method("VgCreate", in("name", "s"), in("pv_object_paths", "ao"), in("tmo", "i"),
				in("create_options", "a{sv}"), out("result", "(oo)")),
			method("Refresh", out("changes", "t")),
			method("LookUpByLvmId", in("key", "s"), out("object_path", "o")),
			method("UseLvmShell", in("yes_no", "b"), out("in_effect", "b")),
			method("ExternalEvent", in("command", "s"), out("result", "i")),
			method("PvScan", in("activate", "b"), in("cache", "b"), in("device_paths", "as"),
				in("major_minors", "a(ii)"), in("tmo", "i"), in("scan_options", "a{sv}"),
				out("result", "o")),
		},
		Properties: []introspect.Property{prop("Version", "s")},
	},
	config.PvInterface: {
		Name: config.PvInterface,
		Methods: []introspect.Method{
			method("Remove", in("tmo", "i"), in("remove_options", "a{sv}"), out("result", "o")),
			method("ReSize", in("new_size_bytes", "t"), in("tmo", "i"),
				in("resize_options", "a{sv}"), out("result", "o")),
			method("AllocationEnabled", in("yes", "b"), in("tmo", "i"),
				in("allocation_options", "a{sv}"), out("result", "o")),
		},
		Properties: []introspect.Property{
			prop("Uuid", "s"), prop("Name", "s"), prop("Fmt", "s"),
			prop("SizeBytes", "t"), prop("FreeBytes", "t"), prop("UsedBytes", "t"),
			prop("DevSizeBytes", "t"), prop("MdaSizeBytes", "t"), prop("MdaFreeBytes", "t"),
			prop("BaStart", "t"), prop("BaSizeBytes", "t"), prop("PeStart", "t"),
			prop("PeCount", "t"), prop("PeAllocCount", "t"), prop("PeSegments", "a(tts)"),
			prop("Exportable", "b"), prop("Allocatable", "b"), prop("Missing", "b"),
			prop("Lv", "a(oa(tts))"), prop("Vg", "o"), prop("Tags", "as"),
		},
	},
	config.VgInterface: {
		Name: config.VgInterface,
		Methods: []introspect.Method{
			method("Rename", in("name", "s"), in("tmo", "i"), in("rename_options", "a{sv}"),
				out("result", "o")),
			method("Remove", in("tmo", "i"), in("remove_options", "a{sv}"), out("result", "o")),
			method("Change", in("tmo", "i"), in("change_options", "a{sv}"), out("result", "o")),
			method("Reduce", in("missing", "b"), in("pv_object_paths", "ao"), in("tmo", "i"),
				in("reduce_options", "a{sv}"), out("result", "o")),
			method("Extend", in("pv_object_paths", "ao"), in("tmo", "i"),
				in("extend_options", "a{sv}"), out("result", "o")),
			method("Move", in("pv_src_obj", "o"), in("pv_source_range", "(tt)"),
				in("pv_dests_and_ranges", "a(ott)"), in("tmo", "i"),
				in("move_options", "a{sv}"), out("job", "o")),
			method("LvCreate", in("name", "s"), in("size_bytes", "t"),
				in("pv_dests_and_ranges", "a(ott)"), in("tmo", "i"),
				in("create_options", "a{sv}"), out("result", "(oo)")),
			method("LvCreateLinear", in("name", "s"), in("size_bytes", "t"),
				in("thin_pool", "b"), in("tmo", "i"), in("create_options", "a{sv}"),
				out("result", "(oo)")),
			method("LvCreateStriped", in("name", "s"), in("size_bytes", "t"),
				in("num_stripes", "u"), in("stripe_size_kb", "u"), in("thin_pool", "b"),
				in("tmo", "i"), in("create_options", "a{sv}"), out("result", "(oo)")),
			method("LvCreateMirror", in("name", "s"), in("size_bytes", "t"),
				in("num_copies", "u"), in("tmo", "i"), in("create_options", "a{sv}"),
				out("result", "(oo)")),
			method("LvCreateRaid", in("name", "s"), in("raid_type", "s"), in("size_bytes", "t"),
				in("num_stripes", "u"), in("stripe_size_kb", "u"), in("tmo", "i"),
				in("create_options", "a{sv}"), out("result", "(oo)")),
			method("CreateCachePool", in("meta_data_lv", "o"), in("data_lv", "o"),
				in("tmo", "i"), in("create_options", "a{sv}"), out("result", "(oo)")),
			method("CreateThinPool", in("meta_data_lv", "o"), in("data_lv", "o"),
				in("tmo", "i"), in("create_options", "a{sv}"), out("result", "(oo)")),
			method("PvTagsAdd", in("pvs", "ao"), in("tags", "as"), in("tmo", "i"),
				in("tag_options", "a{sv}"), out("result", "o")),
			method("PvTagsDel", in("pvs", "ao"), in("tags", "as"), in("tmo", "i"),
				in("tag_options", "a{sv}"), out("result", "o")),
			method("TagsAdd", in("tags", "as"), in("tmo", "i"), in("tag_options", "a{sv}"),
				out("result", "o")),
			method("TagsDel", in("tags", "as"), in("tmo", "i"), in("tag_options", "a{sv}"),
				out("result", "o")),
			method("AllocationPolicySet", in("policy", "s"), in("tmo", "i"),
				in("policy_options", "a{sv}"), out("result", "o")),
			method("MaxPvSet", in("number", "t"), in("tmo", "i"), in("max_options", "a{sv}"),
				out("result", "o")),
			method("MaxLvSet", in("number", "t"), in("tmo", "i"), in("max_options", "a{sv}"),
				out("result", "o")),
			method("UuidGenerate", in("tmo", "i"), in("options", "a{sv}"), out("result", "o")),
			method("Activate", in("control_flags", "t"), in("tmo", "i"),
				in("activate_options", "a{sv}"), out("result", "o")),
			method("Deactivate", in("control_flags", "t"), in("tmo", "i"),
				in("activate_options", "a{sv}"), out("result", "o")),
		},
		Properties: []introspect.Property{
			prop("Uuid", "s"), prop("Name", "s"), prop("Fmt", "s"),
			prop("SizeBytes", "t"), prop("FreeBytes", "t"), prop("SysId", "s"),
			prop("ExtentSizeBytes", "t"), prop("ExtentCount", "t"), prop("FreeCount", "t"),
			prop("Profile", "s"), prop("MaxLv", "x"), prop("MaxPv", "x"),
			prop("PvCount", "t"), prop("LvCount", "t"), prop("SnapCount", "t"),
			prop("Seqno", "t"), prop("MdaCount", "t"), prop("MdaFree", "t"),
			prop("MdaSizeBytes", "t"), prop("MdaUseCount", "t"),
			prop("Pvs", "ao"), prop("Lvs", "ao"), prop("Tags", "as"),
			prop("Writeable", "b"), prop("Readable", "b"), prop("Resizeable", "b"),
			prop("Exportable", "b"), prop("Partial", "b"),
			prop("AllocContiguous", "b"), prop("AllocCling", "b"),
			prop("AllocNormal", "b"), prop("AllocAnywhere", "b"), prop("Clustered", "b"),
		},
	},
	config.VgVdoInterface: {
		Name: config.VgVdoInterface,
		Methods: []introspect.Method{
			method("CreateVdoPoolandLv", in("pool_name", "s"), in("lv_name", "s"),
				in("data_size", "t"), in("virtual_size", "t"), in("tmo", "i"),
				in("create_options", "a{sv}"), out("result", "(oo)")),
			method("CreateVdoPool", in("pool_lv", "o"), in("name", "s"),
				in("virtual_size", "t"), in("tmo", "i"), in("create_options", "a{sv}"),
				out("result", "(oo)")),
		},
	},
	config.LvCommonInterface: {
		Name: config.LvCommonInterface,
		Properties: []introspect.Property{
			prop("Uuid", "s"), prop("Name", "s"), prop("Path", "s"),
			prop("SizeBytes", "t"), prop("DataPercent", "u"), prop("SegType", "as"),
			prop("Vg", "o"), prop("OriginLv", "o"), prop("PoolLv", "o"),
			prop("Devices", "a(oa(tts))"), prop("HiddenLvs", "ao"), prop("Tags", "as"),
			prop("VolumeType", "(ss)"), prop("Permissions", "(ss)"),
			prop("AllocationPolicy", "(ss)"), prop("State", "(ss)"),
			prop("TargetType", "(ss)"), prop("Health", "(ss)"),
			prop("FixedMinor", "b"), prop("ZeroBlocks", "b"), prop("SkipActivation", "b"),
			prop("Active", "b"), prop("IsThinVolume", "b"), prop("IsThinPool", "b"),
		},
	},
	config.LvInterface: {
		Name: config.LvInterface,
		Methods: []introspect.Method{
			method("Remove", in("tmo", "i"), in("remove_options", "a{sv}"), out("result", "o")),
			method("Rename", in("name", "s"), in("tmo", "i"), in("rename_options", "a{sv}"),
				out("result", "o")),
			method("Resize", in("new_size_bytes", "t"), in("pv_dests_and_ranges", "a(ott)"),
				in("tmo", "i"), in("resize_options", "a{sv}"), out("result", "o")),
			method("Move", in("pv_src_obj", "o"), in("pv_source_range", "(tt)"),
				in("pv_dests_and_ranges", "a(ott)"), in("tmo", "i"),
				in("move_options", "a{sv}"), out("job", "o")),
			method("Snapshot", in("name", "s"), in("optional_size", "t"), in("tmo", "i"),
				in("snapshot_options", "a{sv}"), out("result", "(oo)")),
			method("Activate", in("control_flags", "t"), in("tmo", "i"),
				in("activate_options", "a{sv}"), out("result", "o")),
			method("Deactivate", in("control_flags", "t"), in("tmo", "i"),
				in("activate_options", "a{sv}"), out("result", "o")),
			method("TagsAdd", in("tags", "as"), in("tmo", "i"), in("tag_options", "a{sv}"),
				out("result", "o")),
			method("TagsDel", in("tags", "as"), in("tmo", "i"), in("tag_options", "a{sv}"),
				out("result", "o")),
		},
	},
	config.ThinPoolInterface: {
		Name: config.ThinPoolInterface,
		Methods: []introspect.Method{
			method("LvCreate", in("name", "s"), in("size_bytes", "t"), in("tmo", "i"),
				in("create_options", "a{sv}"), out("result", "(oo)")),
		},
		Properties: []introspect.Property{
			prop("DataLv", "o"), prop("MetaDataLv", "o"),
		},
	},
	config.CachePoolInterface: {
		Name: config.CachePoolInterface,
		Methods: []introspect.Method{
			method("CacheLv", in("lv_object", "o"), in("tmo", "i"),
				in("cache_options", "a{sv}"), out("result", "(oo)")),
		},
	},
	config.CachedLvInterface: {
		Name: config.CachedLvInterface,
		Methods: []introspect.Method{
			method("DetachCachePool", in("destroy_cache", "b"), in("tmo", "i"),
				in("detach_options", "a{sv}"), out("result", "(oo)")),
		},
		Properties: []introspect.Property{prop("CachePool", "o")},
	},
	config.SnapshotInterface: {
		Name: config.SnapshotInterface,
		Methods: []introspect.Method{
			method("Merge", in("tmo", "i"), in("merge_options", "a{sv}"), out("job", "o")),
		},
	},
	config.VdoPoolInterface: {
		Name: config.VdoPoolInterface,
		Methods: []introspect.Method{
			method("EnableCompression", in("tmo", "i"), in("comp_options", "a{sv}"), out("result", "o")),
			method("DisableCompression", in("tmo", "i"), in("comp_options", "a{sv}"), out("result", "o")),
			method("EnableDeduplication", in("tmo", "i"), in("dedup_options", "a{sv}"), out("result", "o")),
			method("DisableDeduplication", in("tmo", "i"), in("dedup_options", "a{sv}"), out("result", "o")),
		},
		Properties: []introspect.Property{
			prop("OperatingMode", "s"), prop("CompressionState", "s"),
			prop("IndexState", "s"), prop("UsedSize", "t"),
			prop("SavingPercent", "u"),
		},
	},
	config.JobInterface: {
		Name: config.JobInterface,
		Methods: []introspect.Method{
			method("Wait", in("timeout", "i"), out("complete", "b")),
			method("Remove"),
		},
		Properties: []introspect.Property{
			prop("Percent", "y"), prop("Complete", "b"),
			prop("Result", "o"), prop("GetError", "(is)"),
		},
	},
}

var stdInterfaces = []introspect.Interface{
	introspect.IntrospectData,
	{
		Name: "org.freedesktop.DBus.Properties",
		Methods: []introspect.Method{
			method("Get", in("interface_name", "s"), in("property_name", "s"), out("value", "v")),
			method("GetAll", in("interface_name", "s"), out("props", "a{sv}")),
			method("Set", in("interface_name", "s"), in("property_name", "s"), in("value", "v")),
		},
	},
}

// introspectEntity builds the Introspectable for one entity.
func introspectEntity(e Exported) introspect.Introspectable {
	node := &introspect.Node{}
	node.Interfaces = append(node.Interfaces, stdInterfaces...)
	for _, iface := range e.Interfaces() {
		if spec, ok := ifaceSpecs[iface]; ok {
			node.Interfaces = append(node.Interfaces, spec)
		}
	}
	return introspect.NewIntrospectable(node)
}

// introspectRoot describes the ObjectManager root.
func introspectRoot() introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: "org.freedesktop.DBus.ObjectManager",
				Methods: []introspect.Method{
					method("GetManagedObjects", out("objects", "a{oa{sa{sv}}}")),
				},
				Signals: []introspect.Signal{
					{Name: "InterfacesAdded", Args: []introspect.Arg{
						{Name: "object_path", Type: "o"},
						{Name: "interfaces_and_properties", Type: "a{sa{sv}}"},
					}},
					{Name: "InterfacesRemoved", Args: []introspect.Arg{
						{Name: "object_path", Type: "o"},
						{Name: "interfaces", Type: "as"},
					}},
				},
			},
		},
	}
	return introspect.NewIntrospectable(node)
}
