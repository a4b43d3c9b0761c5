package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetStatus_String(t *testing.T) {
	assert.Equal(t, "unset", AssetStatusUnset.String())
	assert.Equal(t, "success", AssetStatusSuccess.String())
	assert.Equal(t, "failure", AssetStatusFailure.String())
}

func TestAssetStatus_IsValid(t *testing.T) {
	tests := []struct {
		status AssetStatus
		want   bool
	}{
		{AssetStatusSuccess, true},
		{AssetStatusFailure, true},
		{AssetStatusUnset, false},
		{AssetStatus("skipped"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "AssetStatus(%q).IsValid()", string(tt.status))
	}
}

func TestPageStatus(t *testing.T) {
	assert.Equal(t, "unset", PageStatusUnset.String())
	assert.True(t, PageStatusSuccess.IsValid())
	assert.True(t, PageStatusFailure.IsValid())
	assert.False(t, PageStatusUnset.IsValid())
	assert.False(t, PageStatus("pending").IsValid())
}

func TestStage_IsTerminal(t *testing.T) {
	nonTerminal := []Stage{StageFetching, StageExtracting, StagePreparingDirs, StageDownloadingAssets, StageWritingPage}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), s.String())
	}
	assert.True(t, StageDone.IsTerminal())
	assert.True(t, StageFailed.IsTerminal())
}
