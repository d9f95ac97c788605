package agent

import "testing"

func TestRouteTableDefaults(t *testing.T) {
	table := NewRouteTable(RoutePrompts{
		FileList:    "files",
		SQLGenerate: "sql",
		SQLExtras:   []string{"schema doc", "glossary doc"},
	})

	fl := table.Get(RouteFileList)
	if !fl.Allowed.Allows("list_directory") || !fl.Allowed.Allows("read_file") {
		t.Errorf("file_list allow-list = %v", fl.Allowed)
	}
	if fl.Allowed.Allows("web_search") {
		t.Error("file_list must not allow web_search")
	}

	sql := table.Get(RouteSQLGenerate)
	if len(sql.Allowed) != 0 {
		t.Errorf("sql_generate allow-list must be empty, got %v", sql.Allowed)
	}
	if len(sql.ExtraSystem) != 2 {
		t.Errorf("sql_generate extras = %v", sql.ExtraSystem)
	}
}

func TestRouteTableUnknownFallsBack(t *testing.T) {
	table := NewRouteTable(RoutePrompts{ExternalKnowledge: "knowledge"})

	rc := table.Get(RouteName("nonsense"))
	if rc.Name != RouteExternalKnowledge {
		t.Errorf("fallback route = %s", rc.Name)
	}
	if table.Known(RouteName("nonsense")) {
		t.Error("nonsense route reported as known")
	}
}

func TestRouteTableLedgerDefault(t *testing.T) {
	table := NewRouteTable(RoutePrompts{})

	rc := table.Get(RouteLedger)
	if !rc.Allowed.Allows("ledger_upsert") {
		t.Error("ledger route must allow ledger_upsert")
	}
	// Server tools register under a server-ID prefix and need an explicit
	// override to be admitted.
	if rc.Allowed.Allows("skills_ocr_receipt") {
		t.Error("prefixed server tool allowed without an override")
	}
}

func TestRouteTableAllowListOverride(t *testing.T) {
	table := NewRouteTable(RoutePrompts{})
	table.SetAllowList(RouteLedger, NewAllowList("ledger_upsert", "skills_ocr_receipt"))

	rc := table.Get(RouteLedger)
	if !rc.Allowed.Allows("skills_ocr_receipt") {
		t.Error("override did not admit the prefixed server tool")
	}
	if !rc.Allowed.Allows("ledger_upsert") {
		t.Error("override dropped ledger_upsert")
	}

	table.SetAllowList(RouteLedger, NewAllowList())
	if table.Get(RouteLedger).Allowed.Allows("ledger_upsert") {
		t.Error("empty override did not clear the allow-list")
	}
}
