package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	// Page-level failures, returned to the caller of a page download
	ErrInvalidRequest  = errors.New("invalid page request")
	ErrPageFetch       = errors.New("page fetch failed")
	ErrDirectoryCreate = errors.New("cannot create output directory")
	ErrPageWrite       = errors.New("cannot write page file")

	// Asset-level failures, recorded per asset and never returned by a page download
	ErrAssetDownload = errors.New("asset download failed")
	ErrAssetTooLarge = errors.New("asset exceeds size limit")

	ErrRetryFailed      = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")          // Wraps original error/status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")          // Wraps original error/status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")       // Wraps original error/status
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrParsing          = errors.New("parsing error")    // Wraps specific parsing error (HTML, URL, YAML)
	ErrFilesystem       = errors.New("filesystem error") // Wraps os errors
	ErrDatabase         = errors.New("database error")   // Wraps badger errors
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")
)

// CategorizeError maps an error to a predefined category string for logging and the outcome store.
// The most specific cause wins: a page fetch that failed with a 404 is "HTTP_404", not "Page_Fetch".
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		// The last attempt's error is wrapped alongside the sentinel, so the whole chain carries it
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		if errors.Unwrap(err) == nil && err == ErrRetryFailed {
			return "RetryFailed_Unknown"
		}
		if c := networkCategory(err); c != "" {
			return "RetryFailed_" + c
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		for _, code := range []string{"404", "403", "401", "410", "429"} {
			if strings.Contains(errMsg, " "+code+" ") {
				return "HTTP_" + code
			}
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrAssetTooLarge):
		return "Policy_SizeLimit"
	case errors.Is(err, ErrInvalidRequest):
		return "Request_Invalid"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "YAML") {
			return "Content_ParsingYAML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrDirectoryCreate):
		return filesystemCategory("Directory", err)
	case errors.Is(err, ErrPageWrite):
		return filesystemCategory("PageWrite", err)
	case errors.Is(err, ErrFilesystem):
		return filesystemCategory("Filesystem", err)
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	if c := networkCategory(err); c != "" {
		return "Network_" + c
	}

	// Page/asset wrappers without a recognizable cause
	switch {
	case errors.Is(err, ErrPageFetch):
		return "Page_Fetch"
	case errors.Is(err, ErrAssetDownload):
		return "Asset_Download"
	}

	return "Unknown"
}

// filesystemCategory refines a filesystem-flavoured category using the wrapped os error
func filesystemCategory(prefix string, err error) string {
	switch {
	case errors.Is(err, os.ErrPermission):
		return prefix + "_Permission"
	case errors.Is(err, os.ErrNotExist):
		return prefix + "_NotExist"
	case errors.Is(err, os.ErrExist):
		return prefix + "_Exist"
	}
	return prefix + "_Other"
}

// networkCategory returns a short network failure class, or "" when err does not look like one
func networkCategory(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"), strings.Contains(lowerErrMsg, "deadline exceeded"):
		return "Timeout"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "DNSLookup"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "ConnectionReset"
	case strings.Contains(lowerErrMsg, "broken pipe"):
		return "BrokenPipe"
	case strings.Contains(lowerErrMsg, "eof"):
		return "UnexpectedEOF"
	case strings.Contains(lowerErrMsg, "tls"), strings.Contains(lowerErrMsg, "certificate"):
		return "TLS"
	}
	return ""
}
