package app

import (
	"context"
	"errors"
	"testing"

	"github.com/relicta-tech/installkit/internal/installation/domain"
)

func releases(tags ...string) []domain.GitHubRelease {
	out := make([]domain.GitHubRelease, 0, len(tags))
	for _, tag := range tags {
		out = append(out, domain.GitHubRelease{Tag: tag, Assets: []domain.ReleaseAsset{{Name: "plugin.difypkg"}}})
	}
	return out
}

func TestUpdateAdvisor_CheckForUpdates(t *testing.T) {
	tests := []struct {
		name     string
		releases []domain.GitHubRelease
		current  string
		want     UpdateAdvice
	}{
		{
			name:    "no releases",
			current: "1.0.0",
			want:    UpdateAdvice{Advisory: Advisory{Kind: AdvisoryError, Message: "no releases found"}},
		},
		{
			name:     "newer release",
			releases: releases("v1.0.0", "v2.0.0", "v0.9.0"),
			current:  "1.0.0",
			want: UpdateAdvice{NeedUpdate: true, Advisory: Advisory{
				Kind: AdvisoryUpdateAvailable, Message: "new version available: v2.0.0", LatestTag: "v2.0.0",
			}},
		},
		{
			name:     "same version with prefix",
			releases: releases("v1.2.0", "v1.1.0"),
			current:  "1.2.0",
			want:     UpdateAdvice{Advisory: Advisory{Kind: AdvisoryInfo, Message: "already up to date", LatestTag: "v1.2.0"}},
		},
		{
			name:     "installed is ahead",
			releases: releases("0.1.0"),
			current:  "0.2.0",
			want:     UpdateAdvice{Advisory: Advisory{Kind: AdvisoryInfo, Message: "already up to date", LatestTag: "0.1.0"}},
		},
	}

	a := NewUpdateAdvisor(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.CheckForUpdates(tt.releases, tt.current); got != tt.want {
				t.Errorf("CheckForUpdates() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUpdateAdvisor_CheckRepository(t *testing.T) {
	fetcher := &fakeFetcher{releases: releases("1.0.0", "1.1.0")}
	a := NewUpdateAdvisor(fetcher, nil)

	advice, rels, err := a.CheckRepository(context.Background(), domain.RepoRef{Owner: "acme", Repo: "search"}, "1.0.0")
	if err != nil {
		t.Fatalf("CheckRepository() error = %v", err)
	}
	if !advice.NeedUpdate || advice.Advisory.LatestTag != "1.1.0" {
		t.Errorf("CheckRepository() advice = %+v", advice)
	}
	if len(rels) != 2 {
		t.Errorf("CheckRepository() returned %d releases, want 2", len(rels))
	}

	fetcher.err = errors.New("rate limited")
	advice, _, err = a.CheckRepository(context.Background(), domain.RepoRef{Owner: "acme", Repo: "search"}, "1.0.0")
	if err == nil {
		t.Fatal("CheckRepository() expected error")
	}
	if advice.Advisory.Kind != AdvisoryError || advice.NeedUpdate {
		t.Errorf("CheckRepository() advice on error = %+v", advice)
	}
}
