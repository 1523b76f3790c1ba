// This file is adapted from Caddy's caddytest test harness:
// https://github.com/caddyserver/caddy/blob/master/caddytest/caddytest.go
//
// Original work Copyright (c) Caddy Authors.
// Licensed under the Apache License, Version 2.0.
//
// Local modifications were made for this repository's integration tests.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	caddycmd "github.com/caddyserver/caddy/v2/cmd"
)

// Config stores configuration for running tests
type Config struct {
	AdminPort          int
	TestRequestTimeout time.Duration
}

// Default test configuration
var Default = Config{
	AdminPort:          2999,
	TestRequestTimeout: 10 * time.Second,
}

// Tester loads Caddyfiles into an in-process Caddy and issues requests
// against it.
type Tester struct {
	Client       *http.Client
	configLoaded bool
	t            testing.TB
	config       Config
}

func NewTester(t testing.TB) *Tester {
	return &Tester{
		Client: &http.Client{
			Timeout: Default.TestRequestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		t:      t,
		config: Default,
	}
}

// InitServer loads rawConfig through the admin API, starting Caddy first if
// it is not running yet.
func (tc *Tester) InitServer(rawConfig string, configType string) {
	if testing.Short() {
		tc.t.SkipNow()
		return
	}

	if err := tc.ensureCaddy(); err != nil {
		tc.t.Skipf("skipping test: %s", err)
		return
	}

	tc.t.Cleanup(func() {
		if tc.t.Failed() && tc.configLoaded {
			res, err := http.Get(fmt.Sprintf("http://localhost:%d/config/", tc.config.AdminPort))
			if err != nil {
				tc.t.Log("unable to read current config")
				return
			}
			defer res.Body.Close()
			body, _ := io.ReadAll(res.Body)

			var out bytes.Buffer
			_ = json.Indent(&out, body, "", "  ")
			tc.t.Logf("----------- failed with config -----------\n%s", out.String())
		}
	})

	req, err := http.NewRequest("POST", fmt.Sprintf("http://localhost:%d/load", tc.config.AdminPort), strings.NewReader(rawConfig))
	if err != nil {
		tc.t.Fatalf("failed to create request: %s", err)
	}
	if configType == "json" {
		req.Header.Add("Content-Type", "application/json")
	} else {
		req.Header.Add("Content-Type", "text/"+configType)
	}

	res, err := tc.Client.Do(req)
	if err != nil {
		tc.t.Fatalf("unable to contact caddy server: %s", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		tc.t.Fatalf("unable to read response: %s", err)
	}
	if res.StatusCode != 200 {
		tc.t.Fatalf("config load failed (status %d): %s", res.StatusCode, string(body))
	}

	tc.configLoaded = true
}

const initConfig = `{
	admin localhost:%d
}
`

func (tc *Tester) ensureCaddy() error {
	if tc.isCaddyAdminRunning() == nil {
		return nil
	}

	f, err := os.CreateTemp("", "caddy-config-*.caddyfile")
	if err != nil {
		return err
	}
	tc.t.Cleanup(func() {
		os.Remove(f.Name())
	})
	if _, err := fmt.Fprintf(f, initConfig, tc.config.AdminPort); err != nil {
		return err
	}
	f.Close()

	os.Args = []string{"caddy", "run", "--config", f.Name(), "--adapter", "caddyfile"}
	go func() {
		caddycmd.Main()
	}()

	for retries := 10; retries > 0 && tc.isCaddyAdminRunning() != nil; retries-- {
		time.Sleep(500 * time.Millisecond)
	}
	return tc.isCaddyAdminRunning()
}

func (tc *Tester) isCaddyAdminRunning() error {
	resp, err := tc.Client.Get(fmt.Sprintf("http://localhost:%d/config/", tc.config.AdminPort))
	if err != nil {
		return fmt.Errorf("caddy not running on localhost:%d", tc.config.AdminPort)
	}
	resp.Body.Close()
	return nil
}

// AssertGetResponse makes a GET request and asserts the status and that the
// body contains expectedBody.
func (tc *Tester) AssertGetResponse(requestURI string, expectedStatusCode int, expectedBody string) (*http.Response, string) {
	tc.t.Helper()

	resp, err := tc.Client.Get(requestURI)
	if err != nil {
		tc.t.Fatalf("failed to call server: %s", err)
	}
	defer resp.Body.Close()

	bytes, err := io.ReadAll(resp.Body)
	if err != nil {
		tc.t.Fatalf("unable to read response body: %s", err)
	}
	body := string(bytes)

	if expectedStatusCode != resp.StatusCode {
		tc.t.Errorf("requesting %q expected status %d but got %d (body: %s)", requestURI, expectedStatusCode, resp.StatusCode, body)
	}
	if expectedBody != "" && !strings.Contains(body, expectedBody) {
		tc.t.Errorf("requesting %q expected body to contain %q but got %q", requestURI, expectedBody, body)
	}
	return resp, body
}
