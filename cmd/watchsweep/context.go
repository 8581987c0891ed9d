package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/waabox/watchsweep/internal/auth"
	"github.com/waabox/watchsweep/internal/config"
	"github.com/waabox/watchsweep/internal/credential"
	"github.com/waabox/watchsweep/internal/logging"
	"github.com/waabox/watchsweep/internal/tui"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	plainFlag    *bool

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string, plainFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		plainFlag:    plainFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag != nil {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			return p
		}
	}
	return config.DefaultConfigPath()
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadFrom(c.configPath())
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Log.Level = *c.logLevelFlag
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the run logger. Every line carries the run id.
func (c *commandContext) logger(cfg config.Config, w io.Writer) (*logrus.Entry, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return nil, err
	}
	return log.WithField("run_id", uuid.NewString()), nil
}

// session holds the authentication pieces shared by the sweep and login commands.
type session struct {
	flow        *auth.TraktDeviceFlow
	store       *credential.FileStore
	coordinator *auth.Coordinator
	screen      *tui.AuthScreen
	held        *heldLogs
	log         *logrus.Entry
}

func (c *commandContext) newSession(cfg config.Config, log *logrus.Entry, cancel context.CancelFunc, errOut io.Writer) *session {
	s := &session{
		flow:  auth.NewTraktDeviceFlow(cfg.Trakt.ClientID, cfg.Trakt.ClientSecret, cfg.Trakt.URL),
		store: credential.NewFileStore(cfg.Credentials.Path),
		log:   log,
	}

	var notifier auth.Notifier = auth.NewConsoleNotifier(errOut)
	if c.useTUI() {
		s.screen = tui.NewAuthScreen(cancel, tea.WithOutput(os.Stderr))
		s.held = holdLogs(log.Logger)
		notifier = s.screen
	}
	s.coordinator = auth.NewCoordinator(s.flow, s.store,
		auth.WithNotifier(notifier),
		auth.WithLogger(log),
	)
	return s
}

// closeScreen waits for the authorization screen, if one was opened, then flushes held logs.
func (s *session) closeScreen() {
	if s.screen == nil {
		return
	}
	err := s.screen.Wait()
	s.held.release()
	if err != nil {
		s.log.WithError(err).Warn("authorization screen failed")
	}
}

// heldLogs buffers a logger's output while the authorization screen draws on the terminal.
type heldLogs struct {
	logger *logrus.Logger
	out    io.Writer
	buf    bytes.Buffer
}

func holdLogs(logger *logrus.Logger) *heldLogs {
	h := &heldLogs{logger: logger, out: logger.Out}
	logger.SetOutput(&h.buf)
	return h
}

// release restores the original output and writes everything logged meanwhile.
func (h *heldLogs) release() {
	h.logger.SetOutput(h.out)
	_, _ = h.out.Write(h.buf.Bytes())
}

func (c *commandContext) useTUI() bool {
	if c.plainFlag != nil && *c.plainFlag {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
