package models

// AssetStatus is the terminal outcome of one asset download
type AssetStatus string

const (
	AssetStatusUnset   AssetStatus = ""        // Zero value = not yet attempted
	AssetStatusSuccess AssetStatus = "success" // Bytes written to the assets directory
	AssetStatusFailure AssetStatus = "failure" // Fetch or write failed; see the recorded reason
)

// String implements fmt.Stringer for logging
func (s AssetStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a terminal value
func (s AssetStatus) IsValid() bool {
	switch s {
	case AssetStatusSuccess, AssetStatusFailure:
		return true
	}
	return false
}

// PageStatus is the outcome of a whole page download as recorded in run history
type PageStatus string

const (
	PageStatusUnset   PageStatus = ""
	PageStatusSuccess PageStatus = "success" // Page file written (asset failures allowed)
	PageStatusFailure PageStatus = "failure" // Fatal fetch, directory or write error
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s PageStatus) IsValid() bool {
	switch s {
	case PageStatusSuccess, PageStatusFailure:
		return true
	}
	return false
}

// Stage is a step of a page download; stages run strictly in declaration order
type Stage string

const (
	StageFetching          Stage = "fetching"
	StageExtracting        Stage = "extracting"
	StagePreparingDirs     Stage = "preparing_dirs"
	StageDownloadingAssets Stage = "downloading_assets"
	StageWritingPage       Stage = "writing_page"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// String implements fmt.Stringer for logging
func (s Stage) String() string {
	return string(s)
}

// IsTerminal reports whether no further stage follows s
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}
