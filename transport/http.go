/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io/ioutil"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/jackal-xmpp/bosh/log"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/net/publicsuffix"
)

const contentType = "text/xml; charset=utf-8"

var errServerFailure = errors.New("transport: server failure")

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpResult struct {
	status int
	body   []byte
}

type httpExchange struct {
	cancel context.CancelFunc
}

func (x *httpExchange) Abort() { x.cancel() }

// HTTP is a Transport that posts bodies over HTTP(S).
type HTTP struct {
	client    httpClient
	cb        *gobreaker.CircuitBreaker
	userAgent string
}

// NewHTTP returns an HTTP transport initialized from cfg.
func NewHTTP(cfg Config) (*HTTP, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	return &HTTP{
		client:    &http.Client{Transport: tr, Jar: jar},
		cb:        gobreaker.NewCircuitBreaker(breakerSettings(cfg.Breaker)),
		userAgent: cfg.UserAgent,
	}, nil
}

// Post satisfies Transport interface.
func (t *HTTP) Post(service string, body []byte, done DoneFunc) (Exchange, error) {
	u, err := url.Parse(service)
	if err != nil {
		return nil, errors.Wrap(err, "transport")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("transport: unsupported scheme '%s'", u.Scheme)
	}
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "transport")
	}
	req.Header.Set("Content-Type", contentType)
	if len(t.userAgent) > 0 {
		req.Header.Set("User-Agent", t.userAgent)
	}

	go t.do(ctx, req, done)
	return &httpExchange{cancel: cancel}, nil
}

func (t *HTTP) do(ctx context.Context, req *http.Request, done DoneFunc) {
	res, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				// aborted exchanges don't count as failures
				return nil, nil
			}
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		r := &httpResult{status: resp.StatusCode, body: b}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, errServerFailure
		}
		return r, nil
	})
	if ctx.Err() != nil {
		return
	}
	if r, ok := res.(*httpResult); ok && r != nil {
		done(r.status, r.body)
		return
	}
	if err != nil {
		log.Warnf("transport: POST %s failed: %v", req.URL, err)
	}
	done(0, nil)
}

func breakerSettings(cfg BreakerConfig) gobreaker.Settings {
	st := gobreaker.Settings{
		Name:        "bosh",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Infof("transport: %s breaker state changed from %s to %s", name, from, to)
		},
	}
	if cfg.ConsecutiveFailures > 0 {
		threshold := cfg.ConsecutiveFailures
		st.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		}
	}
	return st
}
