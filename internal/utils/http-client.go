package utils

import (
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type HoardHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewHoardHTTPClient(cfg HTTPClientConfig) *HoardHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = DefaultKATimeout
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	return &HoardHTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: NewTransport(cfg),
		},
		config: cfg,
	}
}

// NewHoardStreamClient is for whole-file transfers: the timeout bounds the
// wait for response headers, not the body read.
func NewHoardStreamClient(cfg HTTPClientConfig) *HoardHTTPClient {
	c := NewHoardHTTPClient(cfg)
	transport := NewTransport(c.config)
	transport.ResponseHeaderTimeout = c.config.Timeout
	c.client = &http.Client{Transport: transport}
	return c
}

// NewTransport builds the shared transport; range requests want raw bytes so
// compression stays off.
func NewTransport(cfg HTTPClientConfig) *http.Transport {
	if cfg.KATimeout == 0 {
		cfg.KATimeout = DefaultKATimeout
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
		MaxConnsPerHost:     0,
	}
	if cfg.HighThreadMode {
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control: func(network, address string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					setSocketOptions(fd)
				})
			},
		}).DialContext
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

func (d *HoardHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if d.config.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range d.config.Headers {
		req.Header.Set(k, v)
	}
	return d.client.Do(req)
}
