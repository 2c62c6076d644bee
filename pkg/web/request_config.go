// SPDX-License-Identifier: GPL-3.0-or-later

package web

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/meterflow/meterflow/pkg/buildinfo"
)

// RequestConfig is the configuration of the HTTP request.
// This structure is not intended to be used directly as part of an exporter's configuration.
// Supported configuration file formats: YAML.
type RequestConfig struct {
	// URL specifies the URL to access.
	URL string `yaml:"url" json:"url"`

	// Username specifies the username for basic HTTP authentication.
	Username string `yaml:"username,omitempty" json:"username"`

	// Password specifies the password for basic HTTP authentication.
	Password string `yaml:"password,omitempty" json:"password"`

	// Method specifies the HTTP method (GET, POST, PUT, etc.). An empty string means GET.
	Method string `yaml:"method,omitempty" json:"method"`

	// Headers specifies the HTTP request header fields to be sent by the client.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers"`

	// Body specifies the HTTP request body to be sent by the client.
	Body string `yaml:"body,omitempty" json:"body"`
}

// Copy makes a full copy of the RequestConfig.
func (r RequestConfig) Copy() RequestConfig {
	if r.Headers == nil {
		return r
	}

	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	r.Headers = headers
	return r
}

var userAgent = fmt.Sprintf("meterflow/%s", buildinfo.Version)

// NewHTTPRequest returns a new *http.Request given a RequestConfig configuration and an error if any.
func NewHTTPRequest(cfg RequestConfig) (*http.Request, error) {
	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(cfg.Body)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(method, cfg.URL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)

	if cfg.Username != "" || cfg.Password != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	for k, v := range cfg.Headers {
		switch strings.ToLower(k) {
		case "host":
			req.Host = v
		default:
			req.Header.Set(k, v)
		}
	}

	return req, nil
}

// NewHTTPRequestWithPath creates a new HTTP request with the given path appended to the base URL.
func NewHTTPRequestWithPath(cfg RequestConfig, urlPath string) (*http.Request, error) {
	// Make a copy to avoid modifying the original config
	cfg = cfg.Copy()

	v, err := url.JoinPath(cfg.URL, urlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to join URL path: %w", err)
	}
	cfg.URL = v

	return NewHTTPRequest(cfg)
}
