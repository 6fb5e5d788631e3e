/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/jackal-xmpp/bosh/bosh"
	"github.com/jackal-xmpp/bosh/config"
	"github.com/jackal-xmpp/bosh/log"
	"github.com/jackal-xmpp/bosh/log/zap"
	"github.com/jackal-xmpp/bosh/transport"
	"github.com/jackal-xmpp/bosh/version"
	"github.com/jackal-xmpp/bosh/xmpp/jid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh/terminal"
)

const (
	defaultShutDownWaitTime = time.Duration(5) * time.Second

	productName = "boshclient"
)

const usageStr = `
Usage: boshclient [options]

Client Options:
    -c, --config <file>    Configuration file path
    -j, --jid <jid>        Overrides configured JID
    -s, --service <url>    Overrides configured BOSH service URL
Common Options:
    -h, --help             Show this message
    -v, --version          Show version
`

// Application encapsulates a BOSH client application.
type Application struct {
	output           io.Writer
	args             []string
	conn             *bosh.Conn
	sess             *session
	metricsSrv       *metricsServer
	waitStopCh       chan os.Signal
	shutDownWaitSecs time.Duration
	readPassword     func() (string, error)
}

// New returns a runnable application given an output and a command line arguments array.
func New(output io.Writer, args []string) *Application {
	a := &Application{
		output:           output,
		args:             args,
		waitStopCh:       make(chan os.Signal, 1),
		shutDownWaitSecs: defaultShutDownWaitTime,
	}
	a.readPassword = a.promptPassword
	return a
}

// Run connects to the configured BOSH service and keeps the session open
// until either a stop signal is received or the session ends.
func (a *Application) Run() error {
	if len(a.args) == 0 {
		return errors.New("empty command-line arguments")
	}
	var configFile, jidStr, service string
	var showVersion, showUsage bool

	fs := flag.NewFlagSet(productName, flag.ContinueOnError)
	fs.SetOutput(a.output)

	fs.BoolVar(&showUsage, "help", false, "Show this message")
	fs.BoolVar(&showUsage, "h", false, "Show this message")
	fs.BoolVar(&showVersion, "version", false, "Print version information.")
	fs.BoolVar(&showVersion, "v", false, "Print version information.")
	fs.StringVar(&configFile, "config", "/etc/boshclient/boshclient.yml", "Configuration file path.")
	fs.StringVar(&configFile, "c", "/etc/boshclient/boshclient.yml", "Configuration file path.")
	fs.StringVar(&jidStr, "jid", "", "Overrides configured JID.")
	fs.StringVar(&jidStr, "j", "", "Overrides configured JID.")
	fs.StringVar(&service, "service", "", "Overrides configured BOSH service URL.")
	fs.StringVar(&service, "s", "", "Overrides configured BOSH service URL.")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(a.output, "%s\n", usageStr)
	}
	if err := fs.Parse(a.args[1:]); err != nil {
		return err
	}
	// print usage
	if showUsage {
		fs.Usage()
		return nil
	}
	// print version
	if showVersion {
		_, _ = fmt.Fprintf(a.output, "%s version: %v\n", productName, version.ApplicationVersion)
		return nil
	}
	// load configuration
	var cfg config.Config
	if err := config.FromFile(configFile, &cfg); err != nil {
		return err
	}
	if len(jidStr) > 0 {
		cfg.JID = jidStr
	}
	if len(service) > 0 {
		cfg.Service = service
	}
	// create PID file
	if err := a.createPIDFile(cfg.PIDFile); err != nil {
		return err
	}
	// initialize logger
	if err := a.initLogger(&cfg.Logger); err != nil {
		return err
	}
	defer log.Unset()

	log.Infof("%s %v", productName, version.ApplicationVersion)

	password, err := a.resolvePassword(&cfg)
	if err != nil {
		return err
	}
	// initialize metrics server...
	if cfg.Metrics.Port > 0 {
		a.metricsSrv = newMetricsServer(cfg.Metrics.Port)
		if err := a.metricsSrv.Start(context.Background()); err != nil {
			return err
		}
	}
	if err := a.connect(&cfg, password); err != nil {
		a.stopMetricsServer(context.Background())
		return err
	}
	// ...wait for stop signal or session termination
	signal.Notify(a.waitStopCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.waitStopCh)

	select {
	case sig := <-a.waitStopCh:
		log.Infof("received %s signal... shutting down...", sig.String())
		return a.gracefullyShutdown()

	case err := <-a.sess.done():
		a.stopMetricsServer(context.Background())
		return err
	}
}

func (a *Application) connect(cfg *config.Config, password string) error {
	tr, err := transport.NewHTTP(transport.Config{
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		Breaker: transport.BreakerConfig{
			MaxRequests:         cfg.HTTP.Breaker.MaxRequests,
			Interval:            cfg.HTTP.Breaker.Interval,
			Timeout:             cfg.HTTP.Breaker.Timeout,
			ConsecutiveFailures: cfg.HTTP.Breaker.ConsecutiveFailures,
		},
		UserAgent: version.ApplicationVersion.UserAgent(productName),
	})
	if err != nil {
		return err
	}
	a.conn, err = bosh.New(cfg.Service,
		bosh.WithTransport(tr),
		bosh.WithRawInput(func(b []byte) { log.Debugf("RECV: %s", b) }),
		bosh.WithRawOutput(func(b []byte) { log.Debugf("SEND: %s", b) }),
		bosh.WithFaultHandler(func(hf *bosh.HandlerFault) { a.sess.onFault(hf) }),
	)
	if err != nil {
		return err
	}
	a.sess = newSession(a.conn, cfg.Ping)

	return a.conn.Connect(cfg.JID, password, a.sess.onStatus,
		bosh.WithWait(cfg.Wait),
		bosh.WithHold(cfg.Hold),
		bosh.WithWindow(cfg.Window),
	)
}

func (a *Application) resolvePassword(cfg *config.Config) (string, error) {
	if len(cfg.Password) > 0 {
		return cfg.Password, nil
	}
	j, err := jid.NewWithString(cfg.JID, false)
	if err != nil {
		return "", errors.Wrapf(err, "invalid jid %s", cfg.JID)
	}
	if len(j.Node()) == 0 {
		return "", nil // anonymous login
	}
	return a.readPassword()
}

func (a *Application) promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !terminal.IsTerminal(fd) {
		return "", errors.New("password not configured and stdin is not a terminal")
	}
	_, _ = fmt.Fprint(a.output, "Password: ")
	b, err := terminal.ReadPassword(fd)
	_, _ = fmt.Fprintln(a.output)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (a *Application) createPIDFile(pidFile string) error {
	if len(pidFile) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(pidFile), os.ModePerm); err != nil {
		return err
	}
	file, err := os.Create(pidFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	currentPid := os.Getpid()
	if _, err := file.WriteString(strconv.FormatInt(int64(currentPid), 10)); err != nil {
		return err
	}
	return nil
}

func (a *Application) initLogger(cfg *log.Config) error {
	if len(cfg.LogPath) > 0 {
		// create logFile intermediate directories.
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), os.ModePerm); err != nil {
			return err
		}
	}
	l, err := zap.NewLogger(cfg.Level.ZapLevel(), cfg.LogPath)
	if err != nil {
		return err
	}
	log.Set(l)
	return nil
}

func (a *Application) gracefullyShutdown() error {
	// wait until session has been closed
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(a.shutDownWaitSecs))
	defer cancel()

	a.conn.Disconnect()

	var err error
	select {
	case err = <-a.sess.done():
	case <-ctx.Done():
		err = ctx.Err()
	}
	a.stopMetricsServer(ctx)
	return err
}

func (a *Application) stopMetricsServer(ctx context.Context) {
	if a.metricsSrv == nil {
		return
	}
	if err := a.metricsSrv.Stop(ctx); err != nil {
		log.Warnf("failed to stop metrics server: %v", err)
	}
}
