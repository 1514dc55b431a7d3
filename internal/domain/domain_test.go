package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

func TestStringList_Scan(t *testing.T) {
	t.Parallel()

	var list domain.StringList
	require.NoError(t, list.Scan([]byte(`["main","article"]`)))
	assert.Equal(t, domain.StringList{"main", "article"}, list)

	require.NoError(t, list.Scan(nil))
	assert.Empty(t, list)

	assert.Error(t, list.Scan(42))
}

func TestJSONBMap_ValueEmpty(t *testing.T) {
	t.Parallel()

	v, err := domain.JSONBMap(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestAsset_Scanned(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name  string
		asset domain.Asset
		want  bool
	}{
		{"never scanned", domain.Asset{ScanStatus: domain.ScanStatusPending}, false},
		{"failed scan", domain.Asset{ScanStatus: domain.ScanStatusFailed, LastScannedAt: &now}, false},
		{"completed scan", domain.Asset{ScanStatus: domain.ScanStatusCompleted, LastScannedAt: &now}, true},
		{"robots blocked", domain.Asset{ScanStatus: domain.ScanStatusBlocked, LastScannedAt: &now}, true},
		{"blocked without timestamp", domain.Asset{ScanStatus: domain.ScanStatusBlocked}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.asset.Scanned())
		})
	}
}

func TestUnavailableResolution(t *testing.T) {
	t.Parallel()

	res := domain.UnavailableResolution("a-1", domain.UnavailableNoToc, "asset has no table of contents")

	assert.True(t, res.ContentUnavailable)
	assert.NotNil(t, res.SourceNodeIDs)
	assert.Empty(t, res.SourceNodeIDs)
	assert.Equal(t, domain.UnavailableNoToc, res.UnavailableKind)
}
