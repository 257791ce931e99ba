// Copyright 2019 The hithere Authors. All rights reserved.
// Use of this source code is governed by the Apache License,
// Version 2.0, that can be found in the LICENSE file.

// Command multihit is a concurrent HTTP benchmarking client: it issues
// HTTP(S) requests against one or more target URLs with configurable
// concurrency, total request count, and wall-clock time limit, while
// periodically reporting throughput, latency distribution, status-code
// histogram, and byte counts.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/bpowers/multihit/config"
	"github.com/bpowers/multihit/engine"
)

// httpLibVersion stands in for the teacher's "curl version" echo
// (--version prints the HTTP library version per spec.md §6.1); Go's
// net/http has no runtime version string, so the module's own build
// stack is reported instead.
const httpLibVersion = "multihit (net/http, golang.org/x/net/http2)"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	debugDir      string
	verbose       bool
	headers       []string
	head          bool
	method        string
	data          string
	get           bool
	forms         []string
	formStrings   []string
	cookie        string
	cookieFile    string
	cookieSession bool
	appendUpload  bool
	uploadFile    string
	keepalive     int
	timeout       int
	connectTO     int
	requests      int
	timelimit     int
	concurrency   int
	weight        string
	http2         bool
	disableCompr  bool
	insecure      bool
	info          bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:     "multihit [options...] <url>...",
		Short:   "Concurrent HTTP benchmarking client",
		Version: httpLibVersion,
		Args:    cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, &f, args)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	// cobra's auto-added --version flag has no short form; registering our
	// own under the same name (spec.md §6.1's -V) heads that off while
	// keeping cobra's built-in "print Version and exit" handling, which
	// keys off the flag named exactly "version" being Changed.
	cmd.Flags().BoolP("version", "V", false, "print version and exit")

	// spec.md §6.1: --help/-h prints usage but, unlike every other
	// exit-0 informational flag, exits 1 - a quirk carried over from the
	// original source's getopt_long usage() path.
	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		os.Exit(1)
	})

	fl := cmd.Flags()
	fl.StringVarP(&f.debugDir, "debug", "D", "", "per-slot debug logs under DIR (empty dir means '.')")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "driver verbose trace -> stderr")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, "add request header (repeatable, max 128)")
	fl.BoolVarP(&f.head, "head", "I", false, "HEAD request")
	fl.StringVarP(&f.method, "method", "m", "", "custom request method")
	fl.StringVarP(&f.data, "data", "d", "", "POST body; sets method to POST unless overridden")
	fl.BoolVarP(&f.get, "get", "G", false, "force GET")
	fl.StringArrayVarP(&f.forms, "form", "F", nil, "multipart field name=val or name=@path for a file")
	fl.StringArrayVar(&f.formStrings, "form-string", nil, "multipart field name=val, never a file")
	fl.StringVarP(&f.cookie, "cookie", "C", "", "cookie header value, sent as-is (not read as a filename)")
	fl.StringVarP(&f.cookieFile, "cookie-file", "f", "", "cookie jar file: read at startup, written at shutdown")
	fl.BoolVarP(&f.cookieSession, "cookie-session", "s", false, "start a new cookie session")
	fl.BoolVarP(&f.appendUpload, "append", "a", false, "append flag for --upload-file (echoed by --info; does not change the request)")
	fl.StringVarP(&f.uploadFile, "upload-file", "T", "", "upload file as the request body")
	fl.IntVarP(&f.keepalive, "keepalive", "k", 0, "enable TCP keep-alive; N seconds idle")
	fl.IntVar(&f.timeout, "timeout", 30, "per-request timeout, seconds")
	fl.IntVar(&f.connectTO, "connect-timeout", 10, "connect timeout, seconds")
	fl.IntVarP(&f.requests, "requests", "n", 0, "max requests (0 = unbounded)")
	fl.IntVarP(&f.timelimit, "timelimit", "t", 0, "wall-clock cap, seconds (0 = unbounded)")
	fl.IntVarP(&f.concurrency, "concurrency", "c", 10, "slot count (floor 1)")
	fl.StringVarP(&f.weight, "weight", "w", "", "per-URL weight list, comma/space separated")
	fl.BoolVarP(&f.http2, "http2", "2", false, "negotiate HTTP/2")
	fl.BoolVar(&f.disableCompr, "disable-compression", false, "disable transport compression")
	fl.BoolVar(&f.insecure, "insecure", false, "skip TLS certificate verification")
	fl.BoolVarP(&f.info, "info", "i", false, "echo parsed config as YAML and exit")

	return cmd
}

func runRoot(cmd *cobra.Command, f *flags, urls []string) error {
	cfg, err := buildConfig(cmd, f, urls)
	if err != nil {
		return err
	}

	if f.info {
		out, err := config.Echo(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}

	level := hclog.Warn
	if f.verbose {
		level = hclog.Debug
	}
	log := hclog.New(&hclog.LoggerOptions{
		Name:   "multihit",
		Level:  level,
		Output: cmd.ErrOrStderr(),
	})

	eng, err := engine.New(cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		return err
	}

	return eng.Run(context.Background())
}

func buildConfig(cmd *cobra.Command, f *flags, urls []string) (*engine.Config, error) {
	if len(f.headers) > 128 {
		return nil, fmt.Errorf("too many -H/--header flags: %d (max 128)", len(f.headers))
	}

	method := f.method
	switch {
	case f.head:
		method = "HEAD"
	case f.get:
		method = "GET"
	case method == "" && f.data != "":
		method = "POST"
	}

	var body []byte
	if f.data != "" {
		body = []byte(f.data)
	}

	form, err := parseForms(f.forms, f.formStrings)
	if err != nil {
		return nil, err
	}

	cfg := &engine.Config{
		Method:             method,
		Headers:            f.headers,
		Body:               body,
		Form:               form,
		Cookie:             f.cookie,
		CookieFile:         f.cookieFile,
		CookieSession:      f.cookieSession,
		Append:             f.appendUpload,
		UploadFile:         f.uploadFile,
		KeepAliveSeconds:   f.keepalive,
		TimeoutSeconds:     f.timeout,
		ConnectTimeout:     f.connectTO,
		URLs:               urls,
		Weights:            engine.ParseWeights(f.weight, len(urls)),
		Requests:           f.requests,
		TimeLimit:          f.timelimit,
		Concurrency:        f.concurrency,
		DebugDir:           debugDir(cmd, f.debugDir),
		Verbose:            f.verbose,
		HTTP2:              f.http2,
		DisableCompression: f.disableCompr,
		InsecureSkipVerify: f.insecure,
	}
	cfg.Normalize()
	return cfg, nil
}

// debugDir implements spec.md §6.1's "empty -> '.'" rule: passing
// --debug with an empty value (--debug= or -D "") enables per-slot debug logs,
// defaulting the directory to the working directory; never passing it
// leaves debug logging disabled.
func debugDir(cmd *cobra.Command, dir string) string {
	if dir == "" && cmd.Flags().Changed("debug") {
		return "."
	}
	return dir
}

func parseForms(plain, stringOnly []string) ([]engine.FormField, error) {
	var fields []engine.FormField
	for _, raw := range plain {
		name, val, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --form %q, want name=value or name=@path", raw)
		}
		isFile := strings.HasPrefix(val, "@")
		if isFile {
			val = strings.TrimPrefix(val, "@")
		}
		fields = append(fields, engine.FormField{Name: name, Value: val, IsFile: isFile})
	}
	for _, raw := range stringOnly {
		name, val, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --form-string %q, want name=value", raw)
		}
		fields = append(fields, engine.FormField{Name: name, Value: val})
	}
	return fields, nil
}
