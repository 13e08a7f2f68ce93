//go:build linux

// Httpd serves a directory tree over HTTP/1.1 on the reactor and, when given
// an upstream, forwards /proxy/ requests to it through pooled client
// connections.
package main

import (
	"bytes"
	"flag"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gotcp/reactor"
	"github.com/gotcp/reactor/httpclient"
	"github.com/gotcp/reactor/httpserver"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

const PROXY_PREFIX = "/proxy"

var (
	configFile string
	root       string
	upstream   string
	logFile    string
	stats      time.Duration
)

func main() {
	var cfg = reactor.DefaultConfig()
	var (
		port      = flag.Int("port", cfg.Port, "listen port")
		threads   = flag.Int("threads", cfg.Threads, "worker threads, 0 for one per CPU")
		serverTmo = flag.Int("server-timeout", cfg.ServerTimeoutSec, "server idle timeout in seconds")
		clientTmo = flag.Int("client-timeout", cfg.ClientTimeoutMs, "client timeout in milliseconds")
		maxReq    = flag.Int("max-request", cfg.MaxRequestSize, "largest accepted request in bytes")
		fd        = flag.Int("fd", cfg.InheritedFd, "inherited listening descriptor")
		logLevel  = flag.String("log-level", cfg.LogLevel, "log level")
	)
	flag.StringVar(&configFile, "config", "", "TOML configuration file")
	flag.StringVar(&root, "root", ".", "document root")
	flag.StringVar(&upstream, "upstream", "", "host:port that /proxy/ forwards to")
	flag.StringVar(&logFile, "log-file", "", "log to this file instead of stderr")
	flag.DurationVar(&stats, "stats", time.Minute, "interval between counter dumps, 0 disables")
	flag.Parse()

	if configFile != "" {
		var err error
		if cfg, err = reactor.LoadConfig(configFile); err != nil {
			logrus.Fatal(err)
		}
	}
	// flags given on the command line win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "threads":
			cfg.Threads = *threads
		case "server-timeout":
			cfg.ServerTimeoutSec = *serverTmo
		case "client-timeout":
			cfg.ClientTimeoutMs = *clientTmo
		case "max-request":
			cfg.MaxRequestSize = *maxReq
		case "fd":
			cfg.InheritedFd = *fd
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if logFile != "" {
		var f, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logrus.Fatal(err)
		}
		defer f.Close()
		logrus.SetOutput(f)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(cfg); err != nil {
		logrus.Fatal(err)
	}
}

func run(cfg reactor.Config) error {
	reactor.MaskSignals()
	var ep, err = cfg.NewEP()
	if err != nil {
		return err
	}
	if err = ep.StopOnSignals(); err != nil {
		return err
	}

	var files = httpserver.FileHandler(root)
	var handler = files
	if upstream != "" {
		var p *proxy
		if p, err = newProxy(ep, upstream); err != nil {
			return err
		}
		handler = func(w *reactor.Worker, c *httpserver.Conn) reactor.Handler {
			if bytes.HasPrefix(c.URI, []byte(PROXY_PREFIX+"/")) {
				return p.forward(w, c)
			}
			return files(w, c)
		}
	}

	var server *httpserver.Server
	if server, err = httpserver.New(ep, handler); err != nil {
		return err
	}
	server.SetMaxRequestSize(cfg.MaxRequestSize)

	var acc *reactor.Acceptor
	if acc, err = cfg.NewAcceptor(ep, server); err != nil {
		return err
	}
	defer acc.Close()
	var listening, _ = acc.Port()

	ep.SetOnThreadInit(func(w *reactor.Worker) error {
		if w.Id == 0 && stats > 0 {
			if err := startStats(w); err != nil {
				return err
			}
		}
		return acc.InitPerThread(w)
	})

	ep.Logger.WithFields(logrus.Fields{
		"port":     listening,
		"root":     root,
		"upstream": upstream,
	}).Info("serving")
	return ep.Start()
}

type proxy struct {
	manager  *httpclient.Manager
	endpoint httpclient.Endpoint
	host     string
}

func newProxy(ep *reactor.EP, hostport string) (*proxy, error) {
	var e, err = httpclient.ParseEndpoint(hostport)
	if err != nil {
		return nil, err
	}
	var m *httpclient.Manager
	if m, err = httpclient.NewManager(ep); err != nil {
		return nil, err
	}
	return &proxy{manager: m, endpoint: e, host: hostport}, nil
}

// forward parks c outside epoll until the upstream answers, then replies with
// the upstream status class and body.
func (p *proxy) forward(w *reactor.Worker, c *httpserver.Conn) reactor.Handler {
	var uri = string(c.URI[len(PROXY_PREFIX):])
	if len(c.Query) > 0 {
		uri += "?" + string(c.Query)
	}
	var client, err = p.manager.Acquire(w, p.endpoint)
	if err != nil {
		return c.Responsef(httpserver.STATUS_503, httpserver.CONTENT_TYPE_TEXT_PLAIN, "%s\n", err)
	}
	if err = client.FetchURI(uri, p.host); err != nil {
		client.Persistent = false
		client.Close(w)
		return c.Responsef(httpserver.STATUS_500, httpserver.CONTENT_TYPE_TEXT_PLAIN, "%s\n", err)
	}
	if err = c.SuspendEvents(w); err != nil {
		client.Persistent = false
		client.Close(w)
		return c.Close()
	}
	client.Context = c
	client.OnComplete = p.reply
	return client
}

func (p *proxy) reply(w *reactor.Worker, client *httpclient.Client) reactor.Handler {
	var c = client.Context.(*httpserver.Conn)
	var status, body = httpserver.STATUS_503, []byte(nil)
	if client.Err() == nil {
		status = statusLine(client.StatusCode())
		body = client.AppendBody(nil)
	} else {
		body = []byte(client.Err().Error() + "\n")
	}
	client.Close(w)
	if err := c.ResumeEvents(w); err != nil {
		return c.Close()
	}
	return c.Responsef(status, httpserver.CONTENT_TYPE_TEXT_PLAIN, "%s", body)
}

func statusLine(code int) string {
	switch {
	case code == 404:
		return httpserver.STATUS_404
	case code == 403:
		return httpserver.STATUS_403
	case code >= 500:
		return httpserver.STATUS_500
	case code >= 400:
		return httpserver.STATUS_400
	}
	return httpserver.STATUS_200
}

func startStats(w *reactor.Worker) error {
	var registry = w.EP().Metrics
	var log = w.EP().Logger
	var t, err = reactor.NewTimer(func(w *reactor.Worker, t *reactor.Timer) reactor.Handler {
		var names []string
		var counts = make(map[string]int64)
		registry.Each(func(name string, i interface{}) {
			if c, ok := i.(metrics.Counter); ok {
				names = append(names, name)
				counts[name] = c.Count()
			}
		})
		sort.Strings(names)
		var fields = logrus.Fields{}
		for _, name := range names {
			fields[name] = humanize.Comma(counts[name])
		}
		log.WithFields(fields).Info("stats")
		return nil
	})
	if err != nil {
		return err
	}
	if err = t.InitPerThread(w); err != nil {
		t.Close()
		return err
	}
	return t.Arm(stats, stats)
}
