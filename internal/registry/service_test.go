package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/adapters"
	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/registry"
	"github.com/jonesrussell/north-cloud/source-registry/internal/storage"
	"github.com/jonesrussell/north-cloud/source-registry/internal/testhelpers"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

type robotsFetcher struct {
	status domain.RobotsStatus
}

func (f robotsFetcher) Fetch(context.Context, string, fetcher.Options) fetcher.Result {
	return fetcher.Result{Err: errors.New("not used")}
}

func (f robotsFetcher) CheckRobots(context.Context, string) fetcher.RobotsCheck {
	return fetcher.RobotsCheck{Allowed: f.status == domain.RobotsAllowed, Status: f.status}
}

// fakeAdapter serves canned candidates and a three-node TOC per asset.
type fakeAdapter struct {
	mu          sync.Mutex
	candidates  []domain.AssetCandidate
	discoverErr error
	mapErr      map[string]error
	robots      map[string]domain.RobotsStatus
	license     string
	mapCalls    int
	validations int
}

func (a *fakeAdapter) SourceType() string { return domain.SourceTypeGeneric }

func (a *fakeAdapter) DiscoverAssets(context.Context, string, map[string]any) ([]domain.AssetCandidate, error) {
	return a.candidates, a.discoverErr
}

func (a *fakeAdapter) Validate(_ context.Context, c domain.AssetCandidate, _ string) (domain.ValidationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validations++

	status := domain.RobotsAllowed
	if s, ok := a.robots[c.Slug]; ok {
		status = s
	}
	return domain.ValidationResult{LicenseName: a.license, LicenseConfidence: 0.9, RobotsStatus: status}, nil
}

func (a *fakeAdapter) MapToc(_ context.Context, c domain.AssetCandidate, _ string) ([]domain.TocNode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mapCalls++

	if err := a.mapErr[c.Slug]; err != nil {
		return nil, err
	}
	b := toc.NewBuilder()
	ch := b.Add("", c.Title+" Chapter 1", c.URL+"/1", domain.NodeTypeChapter)
	b.Add(ch, "1.1 Basics", c.URL+"/1/1", domain.NodeTypeSection)
	b.Add(ch, "1.2 More", c.URL+"/1/2", domain.NodeTypeSection)
	return b.Nodes(), nil
}

func (a *fakeAdapter) calls() (validations, maps int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validations, a.mapCalls
}

var testSeed = domain.Seed{
	Name:    "example-books",
	Type:    domain.SourceTypeGeneric,
	BaseURL: "https://books.example.org",
	License: "CC BY 4.0",
}

func twoCandidates() []domain.AssetCandidate {
	return []domain.AssetCandidate{
		{Slug: "algebra", Title: "Algebra", URL: "https://books.example.org/algebra"},
		{Slug: "biology", Title: "Biology", URL: "https://books.example.org/biology"},
	}
}

func newTestService(t *testing.T, adapter adapters.Adapter, robots domain.RobotsStatus, seeds ...domain.Seed) (*registry.Service, *testhelpers.MemoryStore) {
	t.Helper()

	store := testhelpers.NewMemoryStore()
	log, _ := testhelpers.NewBufferedLogger(t)
	if len(seeds) == 0 {
		seeds = []domain.Seed{testSeed}
	}
	svc := registry.NewService(registry.Config{
		Store:   store,
		Fetcher: robotsFetcher{status: robots},
		Seeds:   seeds,
		Adapters: func(domain.Seed) (adapters.Adapter, error) {
			return adapter, nil
		},
		Logger: log,
	})
	return svc, store
}

func TestScanSeed_MapsEveryAsset(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{candidates: twoCandidates(), license: "CC BY 4.0"}
	svc, store := newTestService(t, adapter, domain.RobotsAllowed)
	ctx := context.Background()

	result, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.AssetsScanned)
	assert.Equal(t, 0, result.AssetsSkipped)
	assert.Equal(t, 6, result.NodesMapped)
	assert.Equal(t, domain.ScanStatusCompleted, result.Source.ScanStatus)
	assert.Equal(t, domain.RobotsAllowed, result.Source.RobotsStatus)
	assert.Equal(t, 30, result.Source.RateLimit)

	assets, err := svc.GetAssets(ctx, result.Source.ID)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	for _, a := range assets {
		assert.True(t, a.TocExtracted)
		assert.Equal(t, 3, a.TocNodeCount)
		assert.Equal(t, 1, a.TocMaxDepth)
		assert.False(t, a.Active, "scanned assets start inactive")

		nodes, nodesErr := svc.GetTocNodes(ctx, a.ID)
		require.NoError(t, nodesErr)
		assert.Len(t, nodes, 3)
		require.NoError(t, toc.Validate(nodes))
	}

	logs := store.ScanLogs()
	actions := make(map[string]int)
	for _, l := range logs {
		actions[l.Action]++
	}
	assert.Equal(t, 1, actions[registry.ActionDiscover])
	assert.Equal(t, 2, actions[registry.ActionScanAsset])
	assert.Equal(t, 1, actions[registry.ActionScanSeed])
}

func TestScanSeed_SkipScannedIsIdempotent(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{candidates: twoCandidates(), license: "CC BY 4.0"}
	svc, _ := newTestService(t, adapter, domain.RobotsAllowed)
	ctx := context.Background()
	opts := domain.ScanOptions{SkipScanned: true}

	first, err := svc.ScanSeed(ctx, testSeed, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, first.AssetsScanned)

	_, mapsBefore := adapter.calls()

	second, err := svc.ScanSeed(ctx, testSeed, opts)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.AssetsScanned)
	assert.Equal(t, 2, second.AssetsSkipped)
	assert.Equal(t, 0, second.NodesMapped)

	_, mapsAfter := adapter.calls()
	assert.Equal(t, mapsBefore, mapsAfter, "skipped assets must not be remapped")

	sources, err := svc.GetSources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1, "rescans reuse the source row")

	assets, err := svc.GetAssets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestScanSeed_WithoutSkipRemapsAssets(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{candidates: twoCandidates(), license: "CC BY 4.0"}
	svc, _ := newTestService(t, adapter, domain.RobotsAllowed)
	ctx := context.Background()

	_, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
	require.NoError(t, err)
	second, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, second.AssetsScanned)
	_, maps := adapter.calls()
	assert.Equal(t, 4, maps)
}

func TestScanSeed_AccumulatesAssetErrors(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		candidates: twoCandidates(),
		license:    "CC BY 4.0",
		mapErr:     map[string]error{"biology": adapters.ErrNoToc},
	}
	svc, _ := newTestService(t, adapter, domain.RobotsAllowed)
	ctx := context.Background()

	result, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{SkipScanned: true})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "biology")
	assert.Equal(t, 3, result.NodesMapped)
	assert.Equal(t, domain.ScanStatusPartial, result.Source.ScanStatus)

	assets, err := svc.GetAssets(ctx, result.Source.ID)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "Algebra", assets[0].Title)
	assert.Equal(t, domain.ScanStatusCompleted, assets[0].ScanStatus)
	assert.Equal(t, domain.ScanStatusFailed, assets[1].ScanStatus)
	assert.False(t, assets[1].TocExtracted)

	// failed assets are retried on the next skipScanned scan
	adapter.mapErr = nil
	retry, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{SkipScanned: true})
	require.NoError(t, err)
	assert.Equal(t, 1, retry.AssetsScanned)
	assert.Equal(t, 1, retry.AssetsSkipped)
	assert.Equal(t, domain.ScanStatusCompleted, retry.Source.ScanStatus)
}

func TestScanSeed_TocPersistFailureIsAssetError(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{candidates: twoCandidates(), license: "CC BY 4.0"}
	svc, store := newTestService(t, adapter, domain.RobotsAllowed)
	store.FailReplaceToc["algebra"] = errors.New("disk full")

	result, err := svc.ScanSeed(context.Background(), testSeed, domain.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "disk full")
	assert.Equal(t, 3, result.NodesMapped)
}

func TestScanSeed_RobotsDisallowedAssetIsBlocked(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		candidates: twoCandidates(),
		license:    "CC BY 4.0",
		robots:     map[string]domain.RobotsStatus{"algebra": domain.RobotsDisallowed},
	}
	svc, _ := newTestService(t, adapter, domain.RobotsAllowed)
	ctx := context.Background()

	result, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
	require.NoError(t, err)

	validations, maps := adapter.calls()
	assert.Equal(t, 2, validations)
	assert.Equal(t, 1, maps)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.AssetsScanned)
	assert.Equal(t, 3, result.NodesMapped)
	assert.Equal(t, domain.ScanStatusCompleted, result.Source.ScanStatus)

	assets, err := svc.GetAssets(ctx, result.Source.ID)
	require.NoError(t, err)
	algebra := findAsset(t, assets, "algebra")
	assert.Equal(t, domain.RobotsDisallowed, algebra.RobotsStatus)
	assert.Equal(t, domain.ScanStatusBlocked, algebra.ScanStatus)
	assert.False(t, algebra.TocExtracted)

	nodes, err := svc.GetTocNodes(ctx, algebra.ID)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	_, err = svc.ActivateAsset(ctx, algebra.ID)
	require.ErrorIs(t, err, registry.ErrActivationBlocked)
}

func TestScanSeed_SkipScannedSkipsBlockedAssets(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		candidates: twoCandidates(),
		license:    "CC BY 4.0",
		robots:     map[string]domain.RobotsStatus{"algebra": domain.RobotsDisallowed},
	}
	svc, _ := newTestService(t, adapter, domain.RobotsAllowed)
	ctx := context.Background()

	_, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{SkipScanned: true})
	require.NoError(t, err)

	again, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{SkipScanned: true})
	require.NoError(t, err)
	assert.Equal(t, 0, again.AssetsScanned)
	assert.Equal(t, 2, again.AssetsSkipped)
	assert.Empty(t, again.Errors)

	validations, _ := adapter.calls()
	assert.Equal(t, 2, validations)
}

func TestScanSeed_BlockedAssetIsDeactivated(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{candidates: twoCandidates()[:1], license: "CC BY 4.0"}
	svc, _ := newTestService(t, adapter, domain.RobotsAllowed)
	ctx := context.Background()

	first, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, first.Assets, 1)
	_, err = svc.ActivateAsset(ctx, first.Assets[0].ID)
	require.NoError(t, err)

	adapter.mu.Lock()
	adapter.robots = map[string]domain.RobotsStatus{"algebra": domain.RobotsDisallowed}
	adapter.mu.Unlock()

	second, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, second.Errors)

	asset, err := svc.GetAssetByID(ctx, first.Assets[0].ID)
	require.NoError(t, err)
	assert.False(t, asset.Active)
	assert.Equal(t, domain.ScanStatusBlocked, asset.ScanStatus)
	assert.Equal(t, 0, asset.TocNodeCount)
}

func findAsset(t *testing.T, assets []domain.Asset, slug string) domain.Asset {
	t.Helper()
	for _, a := range assets {
		if a.Slug == slug {
			return a
		}
	}
	t.Fatalf("asset %q not found", slug)
	return domain.Asset{}
}

func TestScanSeed_DiscoveryFailure(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{discoverErr: errors.New("catalog unreachable")}
	svc, _ := newTestService(t, adapter, domain.RobotsUnknown)

	result, err := svc.ScanSeed(context.Background(), testSeed, domain.ScanOptions{})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, domain.ScanStatusFailed, result.Source.ScanStatus)
	assert.Equal(t, domain.RobotsUnknown, result.Source.RobotsStatus)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "catalog unreachable")
}

func TestScanSeed_NoCandidatesSucceeds(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeAdapter{}, domain.RobotsAllowed)

	result, err := svc.ScanSeed(context.Background(), testSeed, domain.ScanOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.ScanStatusCompleted, result.Source.ScanStatus)
}

func TestScanSeed_AllAssetsFailing(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		candidates: twoCandidates(),
		mapErr: map[string]error{
			"algebra": adapters.ErrNoToc,
			"biology": adapters.ErrNoToc,
		},
	}
	svc, _ := newTestService(t, adapter, domain.RobotsAllowed)

	result, err := svc.ScanSeed(context.Background(), testSeed, domain.ScanOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ScanStatusFailed, result.Source.ScanStatus)
	assert.Len(t, result.Errors, 3)
}

func TestScanAllSeeds_ContinuesPastFailures(t *testing.T) {
	t.Parallel()

	good := &fakeAdapter{candidates: twoCandidates(), license: "CC BY 4.0"}
	bad := &fakeAdapter{discoverErr: errors.New("boom")}
	store := testhelpers.NewMemoryStore()
	seeds := []domain.Seed{
		{Name: "broken", Type: domain.SourceTypeGeneric, BaseURL: "https://broken.example.org"},
		testSeed,
	}
	svc := registry.NewService(registry.Config{
		Store:   store,
		Fetcher: robotsFetcher{status: domain.RobotsAllowed},
		Seeds:   seeds,
		Adapters: func(seed domain.Seed) (adapters.Adapter, error) {
			if seed.Name == "broken" {
				return bad, nil
			}
			return good, nil
		},
	})

	results, err := svc.ScanAllSeeds(context.Background(), domain.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestScanSourceByID(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{candidates: twoCandidates(), license: "CC BY 4.0"}
	svc, _ := newTestService(t, adapter, domain.RobotsAllowed)
	ctx := context.Background()

	first, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
	require.NoError(t, err)

	again, err := svc.ScanSourceByID(ctx, first.Source.ID, domain.ScanOptions{SkipScanned: true})
	require.NoError(t, err)
	assert.Equal(t, first.Source.ID, again.Source.ID)
	assert.Equal(t, 2, again.AssetsSkipped)

	_, err = svc.ScanSourceByID(ctx, "missing", domain.ScanOptions{})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindSeed(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeAdapter{}, domain.RobotsAllowed)

	seed, err := svc.FindSeed("example-books")
	require.NoError(t, err)
	assert.Equal(t, testSeed.BaseURL, seed.BaseURL)

	_, err = svc.FindSeed("nope")
	require.ErrorIs(t, err, registry.ErrSeedNotFound)
}

func TestActivateAsset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("allowed with known license", func(t *testing.T) {
		t.Parallel()

		svc, store := newTestService(t, &fakeAdapter{candidates: twoCandidates(), license: "CC BY 4.0"}, domain.RobotsAllowed)
		result, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
		require.NoError(t, err)
		id := result.Assets[0].ID

		asset, err := svc.ActivateAsset(ctx, id)
		require.NoError(t, err)
		assert.True(t, asset.Active)

		// a rescan keeps the activation flag
		_, err = svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
		require.NoError(t, err)
		stored, err := svc.GetAssetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, stored.Active)

		asset, err = svc.DeactivateAsset(ctx, id)
		require.NoError(t, err)
		assert.False(t, asset.Active)

		logs, err := svc.GetScanLogs(ctx, domain.ScanLogFilter{AssetID: id})
		require.NoError(t, err)
		var toggles []string
		for _, l := range logs {
			if l.Action == registry.ActionActivate || l.Action == registry.ActionDeactivate {
				toggles = append(toggles, l.Action)
			}
		}
		assert.ElementsMatch(t, []string{registry.ActionActivate, registry.ActionDeactivate}, toggles)
		assert.NotEmpty(t, store.ScanLogs())
	})

	t.Run("unknown license is blocked", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t, &fakeAdapter{candidates: twoCandidates()}, domain.RobotsAllowed)
		result, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
		require.NoError(t, err)

		_, err = svc.ActivateAsset(ctx, result.Assets[0].ID)
		require.ErrorIs(t, err, registry.ErrActivationBlocked)
		assert.Contains(t, err.Error(), "license is unknown")
	})

	t.Run("disallowed robots is blocked", func(t *testing.T) {
		t.Parallel()

		adapter := &fakeAdapter{
			candidates: twoCandidates(),
			license:    "CC BY 4.0",
			robots:     map[string]domain.RobotsStatus{"algebra": domain.RobotsDisallowed},
		}
		svc, _ := newTestService(t, adapter, domain.RobotsAllowed)
		result, err := svc.ScanSeed(ctx, testSeed, domain.ScanOptions{})
		require.NoError(t, err)

		_, err = svc.ActivateAsset(ctx, result.Assets[0].ID)
		require.ErrorIs(t, err, registry.ErrActivationBlocked)
	})

	t.Run("missing asset", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t, &fakeAdapter{}, domain.RobotsAllowed)
		_, err := svc.ActivateAsset(ctx, "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
		_, err = svc.DeactivateAsset(ctx, "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestActivationBlockers(t *testing.T) {
	t.Parallel()

	assert.Empty(t, registry.ActivationBlockers(&domain.Asset{RobotsStatus: domain.RobotsAllowed, LicenseName: "MIT"}))
	assert.Len(t, registry.ActivationBlockers(&domain.Asset{RobotsStatus: domain.RobotsUnknown}), 2)
}
