// Package naming maps URLs to the local file and directory names used in a page download.
//
// Every function here is a pure function of its URL argument, so the name of a page,
// its assets directory, and each asset can be recomputed independently at any time.
package naming

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

const (
	// PageExtension is appended to page names whose URL path has no extension
	PageExtension = ".html"
	// AssetsDirSuffix distinguishes an assets directory from its page file
	AssetsDirSuffix = "_files"
	// Separator replaces every run of characters outside [A-Za-z0-9]
	Separator = "-"

	fallbackSlug = "index"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Slug converts host+path of u into a filesystem-safe string
// The scheme, query and fragment do not take part; an explicit port does
func Slug(u *url.URL) string {
	return slugify(u.Host + u.Path)
}

// LocalName returns the file name for an asset URL
// A path extension is kept verbatim; a path without one yields a name without one
func LocalName(u *url.URL) string {
	return nameWithExtension(u, "")
}

// PageFileName returns the file name for the page itself, defaulting to PageExtension
func PageFileName(u *url.URL) string {
	return nameWithExtension(u, PageExtension)
}

// AssetsDirName returns the directory name holding a page's assets
func AssetsDirName(pageURL *url.URL) string {
	return Slug(pageURL) + AssetsDirSuffix
}

// AssetPath returns the relative reference written into the page for an asset
// It always uses forward slashes, whatever the host OS
func AssetPath(assetsDirName, localName string) string {
	return assetsDirName + "/" + localName
}

func nameWithExtension(u *url.URL, defaultExt string) string {
	ext := Extension(u.Path)
	stem := slugify(u.Host + strings.TrimSuffix(u.Path, ext))
	if ext == "" {
		ext = defaultExt
	}
	return stem + ext
}

// Extension returns the extension of the last path segment, or "" when there is none
// A trailing slash or a dot-only segment ("/.", "/..", "/.hidden") has no extension
func Extension(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	base := path.Base(p)
	ext := path.Ext(base)
	if ext == "" || ext == base || ext == "." {
		return ""
	}
	// An extension must itself be filesystem safe to be kept verbatim
	if nonAlphanumeric.MatchString(ext[1:]) {
		return ""
	}
	return ext
}

func slugify(s string) string {
	slug := strings.Trim(nonAlphanumeric.ReplaceAllString(s, Separator), Separator)
	if slug == "" {
		return fallbackSlug
	}
	return slug
}
