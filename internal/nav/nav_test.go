package nav

import "testing"

func TestBuildMarksActive(t *testing.T) {
	items := Build("/plans/01HX", true)
	if len(items) != 2 || !items[0].Active || items[1].Active {
		t.Fatalf("expected planner active on plan pages, got %+v", items)
	}
	guest := Build("/register", false)
	var active []string
	for _, it := range guest {
		if it.Active {
			active = append(active, it.Href)
		}
	}
	if len(active) != 1 || active[0] != "/register" {
		t.Fatalf("unexpected active items %v", active)
	}
}
