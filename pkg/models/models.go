package models

import (
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"
)

// PageRequest is the input of a single page download
type PageRequest struct {
	SourceURL string `validate:"required,url"`
	OutputDir string `validate:"required"`
}

// Validate checks the request's struct tags
func (r *PageRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// AssetReference is one resource-bearing attribute found in the page markup
type AssetReference struct {
	OriginalURL   string             // Attribute value as found in the markup
	ResolvedURL   *url.URL           // Absolute URL, resolved against the page URL
	Tag           string             // Element name: link, script or img
	Attr          string             // Rewritten attribute: href or src
	LocalFileName string             // Name inside the assets directory
	LocalPath     string             // assetsDirName/LocalFileName, as written into the markup
	Element       *goquery.Selection // Node whose attribute was rewritten
}

// URL returns the resolved URL as a string
func (a AssetReference) URL() string {
	if a.ResolvedURL == nil {
		return ""
	}
	return a.ResolvedURL.String()
}

// DownloadResult is the outcome of downloading one AssetReference
type DownloadResult struct {
	Asset      AssetReference
	Status     AssetStatus
	Err        error         // Non-nil on failure
	Reason     string        // Error category on failure (utils.CategorizeError)
	StatusCode int           // HTTP status, 0 if no response was received
	Bytes      int64         // Bytes written on success
	SHA256     string        // Hex digest of the written bytes on success
	Duration   time.Duration // Wall time spent on the unit
}

// Succeeded reports whether the asset was written to disk
func (r DownloadResult) Succeeded() bool {
	return r.Status == AssetStatusSuccess
}

// PageResult describes a completed page download
type PageResult struct {
	RunID      string
	SourceURL  string
	FinalURL   string // URL after redirects; asset references resolve against it
	PagePath   string // Absolute path of the written page file
	AssetsDir  string // Absolute path of the assets directory (may not exist when no assets were found)
	Assets     []DownloadResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed returns the asset results that did not succeed, in extraction order
func (p *PageResult) Failed() []DownloadResult {
	var failed []DownloadResult
	for _, r := range p.Assets {
		if !r.Succeeded() {
			failed = append(failed, r)
		}
	}
	return failed
}

// SucceededCount returns how many assets were written
func (p *PageResult) SucceededCount() int {
	n := 0
	for _, r := range p.Assets {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

// RunRecord stores the result of one page download in the run history
type RunRecord struct {
	RunID        string     `json:"run_id"`
	SourceURL    string     `json:"source_url"`
	PagePath     string     `json:"page_path,omitempty"`
	Status       PageStatus `json:"status"`
	ErrorType    string     `json:"error_type,omitempty"` // Error category (on failure)
	Error        string     `json:"error,omitempty"`
	AssetsTotal  int        `json:"assets_total"`
	AssetsFailed int        `json:"assets_failed"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
}

// AssetRecord stores the result of one asset download in the run history
type AssetRecord struct {
	URL        string      `json:"url"`
	LocalPath  string      `json:"local_path"`
	Status     AssetStatus `json:"status"`
	ErrorType  string      `json:"error_type,omitempty"`
	StatusCode int         `json:"status_code,omitempty"`
	Bytes      int64       `json:"bytes,omitempty"`
	SHA256     string      `json:"sha256,omitempty"`
}

// PageManifest is the optional YAML summary written next to a page file
type PageManifest struct {
	SourceURL string          `yaml:"source_url"`
	FinalURL  string          `yaml:"final_url,omitempty"`
	PageFile  string          `yaml:"page_file"`
	AssetsDir string          `yaml:"assets_dir"`
	FetchedAt time.Time       `yaml:"fetched_at"`
	Assets    []ManifestAsset `yaml:"assets"`
}

// ManifestAsset holds one asset entry of a PageManifest
type ManifestAsset struct {
	URL       string      `yaml:"url"`
	LocalPath string      `yaml:"local_path"`
	Status    AssetStatus `yaml:"status"`
	Bytes     int64       `yaml:"bytes,omitempty"`
	SHA256    string      `yaml:"sha256,omitempty"`
	Error     string      `yaml:"error,omitempty"`
}

// NewAssetRecord converts a download result into its history form
func NewAssetRecord(r DownloadResult) AssetRecord {
	return AssetRecord{
		URL:        r.Asset.URL(),
		LocalPath:  r.Asset.LocalPath,
		Status:     r.Status,
		ErrorType:  r.Reason,
		StatusCode: r.StatusCode,
		Bytes:      r.Bytes,
		SHA256:     r.SHA256,
	}
}

// NewManifestAsset converts a download result into its manifest form
func NewManifestAsset(r DownloadResult) ManifestAsset {
	m := ManifestAsset{
		URL:       r.Asset.URL(),
		LocalPath: r.Asset.LocalPath,
		Status:    r.Status,
		Bytes:     r.Bytes,
		SHA256:    r.SHA256,
	}
	if r.Err != nil {
		m.Error = r.Err.Error()
	}
	return m
}
