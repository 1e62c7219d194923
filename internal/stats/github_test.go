package stats

import "testing"

func TestDeriveContributionStats(t *testing.T) {
	cal := ContributionCalendar{
		TotalContributions: 12,
		Weeks: []ContributionWeek{
			{ContributionDays: []ContributionDay{
				{ContributionCount: 1, Date: "2026-08-20"},
				{ContributionCount: 0, Date: "2026-08-21"},
				{ContributionCount: 2, Date: "2026-08-22"},
			}},
			{ContributionDays: []ContributionDay{
				{ContributionCount: 5, Date: "2026-08-23"},
				{ContributionCount: 3, Date: "2026-08-24"},
				{ContributionCount: 1, Date: "2026-08-25"},
			}},
		},
	}

	got := deriveContributionStats(cal)
	if got == nil {
		t.Fatal("expected derived stats")
	}
	if got.CurrentStreak != 4 {
		t.Errorf("current streak = %d, want 4", got.CurrentStreak)
	}
	if got.LongestStreak != 4 {
		t.Errorf("longest streak = %d, want 4", got.LongestStreak)
	}
	if got.MostActiveDay != "Sunday" {
		t.Errorf("most active day = %s, want Sunday", got.MostActiveDay)
	}
	if got.AveragePerDay != 2 {
		t.Errorf("average per day = %f, want 2", got.AveragePerDay)
	}
	if got.AveragePerWeek != 6 {
		t.Errorf("average per week = %f, want 6", got.AveragePerWeek)
	}
}

func TestMostActiveDaySumsAcrossWeeks(t *testing.T) {
	// Two Mondays at 3+4 outweigh the single busiest day (Sunday, 5).
	cal := ContributionCalendar{
		TotalContributions: 12,
		Weeks: []ContributionWeek{
			{ContributionDays: []ContributionDay{
				{ContributionCount: 3, Date: "2026-08-17"},
			}},
			{ContributionDays: []ContributionDay{
				{ContributionCount: 5, Date: "2026-08-23"},
				{ContributionCount: 4, Date: "2026-08-24"},
			}},
		},
	}

	got := deriveContributionStats(cal)
	if got == nil {
		t.Fatal("expected derived stats")
	}
	if got.MostActiveDay != "Monday" {
		t.Errorf("most active day = %s, want Monday", got.MostActiveDay)
	}
}

func TestDeriveContributionStatsEmpty(t *testing.T) {
	if got := deriveContributionStats(ContributionCalendar{}); got != nil {
		t.Errorf("expected nil for empty calendar, got %+v", got)
	}
}

func TestToUserStatsAggregates(t *testing.T) {
	u := &graphqlUser{Login: "octocat", Name: "The Octocat"}
	u.PullRequests.TotalCount = 7
	u.ContributionsCollection.TotalCommitContributions = 42
	u.Repositories.Nodes = []struct {
		StargazerCount  int `json:"stargazerCount"`
		ForkCount       int `json:"forkCount"`
		PrimaryLanguage *struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		} `json:"primaryLanguage"`
	}{
		{StargazerCount: 10, ForkCount: 2, PrimaryLanguage: &struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		}{Name: "Go", Color: "#00ADD8"}},
		{StargazerCount: 5, ForkCount: 1, PrimaryLanguage: &struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		}{Name: "Go", Color: "#00ADD8"}},
		{StargazerCount: 3, ForkCount: 0, PrimaryLanguage: nil},
	}

	s := u.toUserStats()

	if s.Username != "octocat" {
		t.Errorf("username = %s", s.Username)
	}
	if s.StarCount != 18 {
		t.Errorf("star count = %d, want 18", s.StarCount)
	}
	if s.ForkCount != 3 {
		t.Errorf("fork count = %d, want 3", s.ForkCount)
	}
	if s.TotalCommits != 42 {
		t.Errorf("total commits = %d, want 42", s.TotalCommits)
	}
	if len(s.TopLanguages) != 1 || s.TopLanguages[0].Value != 2 {
		t.Errorf("expected one Go entry counted twice, got %+v", s.TopLanguages)
	}
}

type repoNode = struct {
	StargazerCount  int `json:"stargazerCount"`
	ForkCount       int `json:"forkCount"`
	PrimaryLanguage *struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	} `json:"primaryLanguage"`
}

func reposWithLanguage(name string, count int) []repoNode {
	lang := &struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}{Name: name}
	nodes := make([]repoNode, count)
	for i := range nodes {
		nodes[i] = repoNode{PrimaryLanguage: lang}
	}
	return nodes
}

func TestTopLanguagesSortedAndCapped(t *testing.T) {
	names := []string{"Zig", "Go", "Rust", "Python", "Ruby", "C", "C++", "Java", "Lua", "Elixir", "Haskell", "Swift"}
	u := &graphqlUser{Login: "octocat"}
	for i, name := range names {
		u.Repositories.Nodes = append(u.Repositories.Nodes, reposWithLanguage(name, i+1)...)
	}

	s := u.toUserStats()

	if len(s.TopLanguages) != maxTopLanguages {
		t.Fatalf("languages returned = %d, want %d", len(s.TopLanguages), maxTopLanguages)
	}
	if s.TopLanguages[0].LanguageName != "Swift" {
		t.Errorf("first language = %s, want Swift", s.TopLanguages[0].LanguageName)
	}
	for i := 1; i < len(s.TopLanguages); i++ {
		if s.TopLanguages[i].Value > s.TopLanguages[i-1].Value {
			t.Errorf("languages not sorted descending at %d: %+v", i, s.TopLanguages)
		}
	}
	for _, slice := range s.TopLanguages {
		if slice.LanguageName == "Zig" || slice.LanguageName == "Go" {
			t.Errorf("smallest languages should be cut, got %+v", s.TopLanguages)
		}
	}
}

func TestTopLanguagesTieBreakByName(t *testing.T) {
	u := &graphqlUser{Login: "octocat"}
	u.Repositories.Nodes = append(u.Repositories.Nodes, reposWithLanguage("Ruby", 2)...)
	u.Repositories.Nodes = append(u.Repositories.Nodes, reposWithLanguage("Elm", 2)...)

	s := u.toUserStats()

	if len(s.TopLanguages) != 2 {
		t.Fatalf("languages returned = %d, want 2", len(s.TopLanguages))
	}
	if s.TopLanguages[0].LanguageName != "Elm" || s.TopLanguages[1].LanguageName != "Ruby" {
		t.Errorf("equal-value languages should sort by name, got %+v", s.TopLanguages)
	}
}
