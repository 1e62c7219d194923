package variants

import "testing"

func TestAllCount(t *testing.T) {
	if len(All) != 16 {
		t.Errorf("expected 16 variants, got %d", len(All))
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"readme-dark-gemini", true},
		{"commit-graph-light-cascade", true},
		{"contribution-dark", true},
		{"readme-dark", false},
		{"commit-graph-dark", false},
		{"", false},
		{"READ ME", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.id); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestThemeOf(t *testing.T) {
	tests := []struct {
		id   string
		want Theme
	}{
		{"readme-light-waves", ThemeLight},
		{"top-languages-light", ThemeLight},
		{"readme-dark-gemini", ThemeDark},
		{"commit-streak-dark", ThemeDark},
	}
	for _, tt := range tests {
		if got := ThemeOf(tt.id); got != tt.want {
			t.Errorf("ThemeOf(%q) = %s, want %s", tt.id, got, tt.want)
		}
	}
}

func TestByTheme(t *testing.T) {
	light := ByTheme("light")
	dark := ByTheme("dark")
	all := ByTheme("all")

	if len(light)+len(dark) != len(All) {
		t.Errorf("light (%d) + dark (%d) should cover all %d variants", len(light), len(dark), len(All))
	}
	if len(all) != len(All) {
		t.Errorf("ByTheme(all) returned %d, want %d", len(all), len(All))
	}
	for _, v := range light {
		if ThemeOf(v) != ThemeLight {
			t.Errorf("ByTheme(light) returned dark variant %s", v)
		}
	}
}

func TestGroupedCoversAll(t *testing.T) {
	grouped := Grouped()
	total := 0
	for _, vs := range grouped {
		total += len(vs)
	}
	if total != len(All) {
		t.Errorf("grouped variants count %d, want %d", total, len(All))
	}
	if len(grouped["commitGraph"]) != 6 {
		t.Errorf("expected 6 commit-graph variants, got %d", len(grouped["commitGraph"]))
	}
}
