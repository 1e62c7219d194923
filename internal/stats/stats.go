// Package stats defines the data payload a render consumes and the provider
// that produces it. The provider is an external collaborator: the pipeline
// only depends on the Provider interface.
package stats

import "context"

// LanguageSlice is one entry of a user's top-language breakdown.
type LanguageSlice struct {
	LanguageName string  `json:"languageName"`
	Color        string  `json:"color,omitempty"`
	Value        float64 `json:"value"`
}

// ContributionDay is a single day of the contribution calendar.
type ContributionDay struct {
	ContributionCount int    `json:"contributionCount"`
	Date              string `json:"date"`
}

// ContributionWeek groups calendar days by week.
type ContributionWeek struct {
	ContributionDays []ContributionDay `json:"contributionDays"`
}

// ContributionCalendar is the full activity grid used by commit-graph cards.
type ContributionCalendar struct {
	TotalContributions int                `json:"totalContributions"`
	Weeks              []ContributionWeek `json:"weeks"`
}

// ContributionStats are derived streak figures used by streak cards.
type ContributionStats struct {
	CurrentStreak   int     `json:"currentStreak"`
	LongestStreak   int     `json:"longestStreak"`
	MostActiveDay   string  `json:"mostActiveDay"`
	AveragePerDay   float64 `json:"averagePerDay"`
	AveragePerWeek  float64 `json:"averagePerWeek"`
	AveragePerMonth float64 `json:"averagePerMonth"`
}

// UserStats is the structured payload handed to the composer. Field names
// mirror the composer's input props.
type UserStats struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Bio       string `json:"bio,omitempty"`
	Company   string `json:"company,omitempty"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`

	Followers int `json:"followers,omitempty"`
	Following int `json:"following,omitempty"`

	StarCount          int `json:"starCount"`
	ForkCount          int `json:"forkCount"`
	TotalCommits       int `json:"totalCommits"`
	TotalPullRequests  int `json:"totalPullRequests"`
	TotalContributions int `json:"totalContributions"`

	TopLanguages []LanguageSlice `json:"topLanguages"`

	ContributionStats    *ContributionStats    `json:"contributionStats,omitempty"`
	ContributionCalendar *ContributionCalendar `json:"contributionCalendar,omitempty"`
}

// Provider fetches fresh stats for a subject on behalf of an installation.
type Provider interface {
	FetchUserStats(ctx context.Context, installationID int64, subject string) (*UserStats, error)
}
