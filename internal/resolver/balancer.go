// Package resolver asks the content balancer where a file can currently be
// fetched from.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hoard/internal/utils"
	"golang.org/x/oauth2"
)

type FileInfo struct {
	Size          int64
	ExpectedHash  string
	ProviderCount int
}

type Resolution struct {
	DownloadURL string
	ProviderID  string
	FileInfo    FileInfo
}

// Resolver is what the engine and the chunk fetcher need from the balancer.
type Resolver interface {
	Resolve(ctx context.Context, fileKey string) (*Resolution, error)
}

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RetryMax is the number of transport-level retries per lookup; 0 leaves
	// retrying to the chunk-level policy.
	RetryMax int
	HTTP     utils.HTTPClientConfig
}

type Balancer struct {
	baseURL string
	client  *retryablehttp.Client
	http    utils.HTTPClientConfig
}

type balancerResponse struct {
	Success  bool `json:"success"`
	FileInfo struct {
		Size           int64  `json:"size"`
		Hash           string `json:"hash"`
		ProvidersCount int    `json:"providersCount"`
	} `json:"fileInfo"`
	DownloadURL string `json:"downloadUrl"`
	Server      string `json:"server"`
	Error       string `json:"error"`
}

func NewBalancer(opts Options) *Balancer {
	if opts.Timeout == 0 {
		opts.Timeout = utils.DefaultResolveTimeout
	}
	var transport http.RoundTripper = utils.NewTransport(opts.HTTP)
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
			Base:   transport,
		}
	}
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient = &http.Client{Timeout: opts.Timeout, Transport: transport}
	client.Logger = nil
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		log.Trace().Str("op", "resolver/balancer").Str("method", req.Method).Str("url", req.URL.String()).Int("attempt", attempt).Msg("Sending balancer request")
	}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if resp == nil {
			return true, err
		}
		return resp.StatusCode >= 500, nil
	}
	// hand the last response back instead of a generic "giving up" error
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Balancer{
		baseURL: opts.BaseURL,
		client:  client,
		http:    opts.HTTP,
	}
}

func (b *Balancer) Resolve(ctx context.Context, fileKey string) (*Resolution, error) {
	fail := func(err error) (*Resolution, error) {
		return nil, &utils.ResolutionError{FileKey: fileKey, Err: err}
	}
	if b.baseURL == "" {
		return fail(errors.New("no balancer configured"))
	}
	lookupURL, err := url.JoinPath(b.baseURL, "api", "download", fileKey)
	if err != nil {
		return fail(fmt.Errorf("invalid balancer URL: %w", err))
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "application/json")
	if b.http.UserAgent != "" {
		req.Header.Set("User-Agent", b.http.UserAgent)
	} else {
		req.Header.Set("User-Agent", utils.ToolUserAgent)
	}
	for k, v := range b.http.Headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fail(fmt.Errorf("balancer returned status %d", resp.StatusCode))
	}

	var body balancerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fail(fmt.Errorf("error decoding balancer response: %w", err))
	}
	if !body.Success {
		msg := body.Error
		if msg == "" {
			msg = "file not available in the network"
		}
		return fail(errors.New(msg))
	}
	res := &Resolution{
		DownloadURL: body.DownloadURL,
		ProviderID:  body.Server,
		FileInfo: FileInfo{
			Size:          body.FileInfo.Size,
			ExpectedHash:  body.FileInfo.Hash,
			ProviderCount: body.FileInfo.ProvidersCount,
		},
	}
	log.Debug().Str("op", "resolver/balancer").Str("key", fileKey).Str("server", res.ProviderID).Int("providers", res.FileInfo.ProviderCount).Msg("Resolved download source")
	return res, nil
}
