package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
)

func TestScanOutcome(t *testing.T) {
	t.Parallel()

	ok := &domain.ScanResult{Success: true}
	failed := &domain.ScanResult{Success: false, Errors: []string{"discover assets: boom"}}

	tests := []struct {
		name    string
		results []*domain.ScanResult
		err     error
		wantErr bool
	}{
		{name: "all succeeded", results: []*domain.ScanResult{ok, ok}},
		{name: "one seed failed among several", results: []*domain.ScanResult{ok, failed}},
		{name: "every seed failed", results: []*domain.ScanResult{failed, failed}, wantErr: true},
		{name: "single seed failed", results: []*domain.ScanResult{failed}, wantErr: true},
		{name: "hard error", results: []*domain.ScanResult{ok}, err: errors.New("database closed"), wantErr: true},
		{name: "no seeds", results: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := scanOutcome(tt.results, tt.err)
			if tt.wantErr {
				require.ErrorIs(t, err, errScanFailed)
				return
			}
			assert.NoError(t, err)
		})
	}
}
