package share

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cloudvault/vaultd/vaulterrs"
)

// URLMetadata is what validate_url_metadata and proxy_url_content
// extract from a remote resource.
type URLMetadata struct {
	ContentType   string
	ContentLength *int64
	LastModified  *time.Time
	Filename      string
}

// ValidateURLMetadata probes a remote URL for a share-from-URL
// request: HEAD first, GET on failure or non-2xx, then extract
// content-type, content-length, last-modified and a best-effort
// filename.
func (s *Service) ValidateURLMetadata(ctx context.Context, rawURL string) (*URLMetadata, error) {
	parsed, err := s.checkURLScheme(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.doRequest(ctx, http.MethodHead, rawURL)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = s.doRequest(ctx, http.MethodGet, rawURL)
		if err != nil {
			return nil, vaulterrs.Driver.Wrap(err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, vaulterrs.Driver.New("fetching %q returned status %d", rawURL, resp.StatusCode)
	}
	return metadataFromResponse(parsed, resp), nil
}

// ProxyURLContent fetches a remote URL's body for proxying: a GET
// whose body the caller streams back to its own client. The caller
// owns closing the returned ReadCloser.
func (s *Service) ProxyURLContent(ctx context.Context, rawURL string) (io.ReadCloser, *URLMetadata, error) {
	parsed, err := s.checkURLScheme(rawURL)
	if err != nil {
		return nil, nil, err
	}

	resp, err := s.doRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, nil, vaulterrs.Driver.Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, nil, vaulterrs.Driver.New("fetching %q returned status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, metadataFromResponse(parsed, resp), nil
}

// checkURLScheme accepts only http and https; URL-syntax errors are
// validation errors, never driver errors.
func (s *Service) checkURLScheme(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, vaulterrs.Validation.Wrap(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, vaulterrs.Validation.New("unsupported URL scheme %q", parsed.Scheme)
	}
	return parsed, nil
}

func (s *Service) doRequest(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return s.httpClient.Do(req)
}

// metadataFromResponse pulls the metadata fields off a probe response.
// Filename preference order: path tail with an extension, then
// Content-Disposition, then a bare path tail, then "download".
func metadataFromResponse(parsed *url.URL, resp *http.Response) *URLMetadata {
	meta := &URLMetadata{ContentType: resp.Header.Get("Content-Type")}
	if resp.ContentLength >= 0 {
		length := resp.ContentLength
		meta.ContentLength = &length
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			meta.LastModified = &t
		}
	}
	meta.Filename = filenameFromResponse(parsed, resp)
	return meta
}

func filenameFromResponse(parsed *url.URL, resp *http.Response) string {
	base := path.Base(parsed.Path)
	hasName := base != "" && base != "." && base != "/"

	if hasName && path.Ext(base) != "" {
		return base
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if fn := params["filename"]; fn != "" {
				return fn
			}
		}
	}
	if hasName {
		return base
	}
	return "download"
}
