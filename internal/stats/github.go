package stats

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"statscards/internal/pkg/errors"
)

// GitHubProvider implements Provider against the GitHub GraphQL API,
// authenticating as a GitHub App installation.
type GitHubProvider struct {
	appID      int64
	privateKey *rsa.PrivateKey
	baseURL    string
	client     *http.Client

	mu     sync.Mutex
	tokens map[int64]installationToken
}

type installationToken struct {
	value     string
	expiresAt time.Time
}

// NewGitHubProvider parses the app private key and returns a provider.
func NewGitHubProvider(appID int64, privateKeyPEM []byte, baseURL string) (*GitHubProvider, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}
	return &GitHubProvider{
		appID:      appID,
		privateKey: key,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		tokens:     make(map[int64]installationToken),
	}, nil
}

const userStatsQuery = `
query($login: String!) {
  user(login: $login) {
    login
    name
    avatarUrl
    bio
    company
    location
    createdAt
    followers { totalCount }
    following { totalCount }
    repositories(first: 100, ownerAffiliations: OWNER, orderBy: {field: STARGAZERS, direction: DESC}) {
      nodes {
        stargazerCount
        forkCount
        primaryLanguage { name color }
      }
    }
    pullRequests { totalCount }
    contributionsCollection {
      totalCommitContributions
      contributionCalendar {
        totalContributions
        weeks {
          contributionDays {
            contributionCount
            date
          }
        }
      }
    }
  }
}`

// FetchUserStats runs the stats query for subject using an installation
// token. All failures surface with the STATS_FETCH_FAILED code so the queue
// retry policy can govern re-attempts.
func (p *GitHubProvider) FetchUserStats(ctx context.Context, installationID int64, subject string) (*UserStats, error) {
	token, err := p.installationToken(ctx, installationID)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStatsFetchFailed, "stats.token", "failed to fetch user stats")
	}

	body, err := json.Marshal(map[string]any{
		"query":     userStatsQuery,
		"variables": map[string]string{"login": subject},
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStatsFetchFailed, "stats.encode", "failed to fetch user stats")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStatsFetchFailed, "stats.request", "failed to fetch user stats")
	}
	req.Header.Set("Content-Type", "application/json")

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	res, err := oauth2.NewClient(ctx, src).Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStatsFetchFailed, "stats.graphql", "failed to fetch user stats")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.CodeStatsFetchFailed, "failed to fetch user stats: graphql http %d", res.StatusCode)
	}

	var payload graphqlResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStatsFetchFailed, "stats.decode", "failed to fetch user stats")
	}
	if len(payload.Errors) > 0 {
		return nil, errors.Newf(errors.CodeStatsFetchFailed, "failed to fetch user stats: %s", payload.Errors[0].Message)
	}
	if payload.Data.User == nil {
		return nil, errors.Newf(errors.CodeStatsFetchFailed, "failed to fetch user stats: user %s not found", subject)
	}

	return payload.Data.User.toUserStats(), nil
}

// installationToken exchanges an app JWT for an installation access token,
// reusing cached tokens until shortly before expiry.
func (p *GitHubProvider) installationToken(ctx context.Context, installationID int64) (string, error) {
	p.mu.Lock()
	cached, ok := p.tokens[installationID]
	p.mu.Unlock()
	if ok && time.Until(cached.expiresAt) > 2*time.Minute {
		return cached.value, nil
	}

	appJWT, err := p.appJWT()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", p.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	res, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("installation token exchange: http %d", res.StatusCode)
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}

	p.mu.Lock()
	p.tokens[installationID] = installationToken{value: out.Token, expiresAt: out.ExpiresAt}
	p.mu.Unlock()

	return out.Token, nil
}

// appJWT mints a short-lived RS256 JWT identifying the GitHub App.
func (p *GitHubProvider) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(p.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.privateKey)
}

type graphqlResponse struct {
	Data struct {
		User *graphqlUser `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type graphqlUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Bio       string `json:"bio"`
	Company   string `json:"company"`
	Location  string `json:"location"`
	CreatedAt string `json:"createdAt"`
	Followers struct {
		TotalCount int `json:"totalCount"`
	} `json:"followers"`
	Following struct {
		TotalCount int `json:"totalCount"`
	} `json:"following"`
	Repositories struct {
		Nodes []struct {
			StargazerCount  int `json:"stargazerCount"`
			ForkCount       int `json:"forkCount"`
			PrimaryLanguage *struct {
				Name  string `json:"name"`
				Color string `json:"color"`
			} `json:"primaryLanguage"`
		} `json:"nodes"`
	} `json:"repositories"`
	PullRequests struct {
		TotalCount int `json:"totalCount"`
	} `json:"pullRequests"`
	ContributionsCollection struct {
		TotalCommitContributions int                  `json:"totalCommitContributions"`
		ContributionCalendar     ContributionCalendar `json:"contributionCalendar"`
	} `json:"contributionsCollection"`
}

// maxTopLanguages caps the language breakdown handed to the composer.
const maxTopLanguages = 10

func (u *graphqlUser) toUserStats() *UserStats {
	s := &UserStats{
		Username:           u.Login,
		Name:               u.Name,
		AvatarURL:          u.AvatarURL,
		Bio:                u.Bio,
		Company:            u.Company,
		Location:           u.Location,
		CreatedAt:          u.CreatedAt,
		Followers:          u.Followers.TotalCount,
		Following:          u.Following.TotalCount,
		TotalPullRequests:  u.PullRequests.TotalCount,
		TotalCommits:       u.ContributionsCollection.TotalCommitContributions,
		TotalContributions: u.ContributionsCollection.ContributionCalendar.TotalContributions,
	}

	langTotals := make(map[string]*LanguageSlice)
	for _, repo := range u.Repositories.Nodes {
		s.StarCount += repo.StargazerCount
		s.ForkCount += repo.ForkCount
		if repo.PrimaryLanguage == nil {
			continue
		}
		slice, ok := langTotals[repo.PrimaryLanguage.Name]
		if !ok {
			slice = &LanguageSlice{
				LanguageName: repo.PrimaryLanguage.Name,
				Color:        repo.PrimaryLanguage.Color,
			}
			langTotals[repo.PrimaryLanguage.Name] = slice
		}
		slice.Value++
	}
	for _, slice := range langTotals {
		s.TopLanguages = append(s.TopLanguages, *slice)
	}
	sort.Slice(s.TopLanguages, func(i, j int) bool {
		a, b := s.TopLanguages[i], s.TopLanguages[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.LanguageName < b.LanguageName
	})
	if len(s.TopLanguages) > maxTopLanguages {
		s.TopLanguages = s.TopLanguages[:maxTopLanguages]
	}

	cal := u.ContributionsCollection.ContributionCalendar
	if len(cal.Weeks) > 0 {
		calCopy := cal
		s.ContributionCalendar = &calCopy
		s.ContributionStats = deriveContributionStats(cal)
	}

	return s
}

// deriveContributionStats computes streaks and averages from the calendar.
func deriveContributionStats(cal ContributionCalendar) *ContributionStats {
	days := make([]ContributionDay, 0, len(cal.Weeks)*7)
	for _, w := range cal.Weeks {
		days = append(days, w.ContributionDays...)
	}
	if len(days) == 0 {
		return nil
	}

	out := &ContributionStats{}

	streak := 0
	best := 0
	var byWeekday [7]int
	for _, d := range days {
		if d.ContributionCount > 0 {
			streak++
			if streak > best {
				best = streak
			}
		} else {
			streak = 0
		}
		if t, err := time.Parse("2006-01-02", d.Date); err == nil {
			byWeekday[t.Weekday()] += d.ContributionCount
		}
	}
	out.CurrentStreak = streak
	out.LongestStreak = best

	busiest := time.Monday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if byWeekday[wd] > byWeekday[busiest] {
			busiest = wd
		}
	}
	out.MostActiveDay = busiest.String()

	total := float64(cal.TotalContributions)
	out.AveragePerDay = total / float64(len(days))
	out.AveragePerWeek = total / float64(len(cal.Weeks))
	out.AveragePerMonth = total / 12

	return out
}
