package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	Level      string
	JSON       bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu     sync.RWMutex
	global = New(Options{})
)

// New builds a logrus logger from opts. LOG_LEVEL overrides opts.Level.
func New(opts Options) *logrus.Logger {
	l := logrus.New()

	level := opts.Level
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = v
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.DateTime})
	}

	if opts.File != "" {
		l.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: opts.MaxBackups,
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			Compress:   true,
		}))
	}
	return l
}

// Init replaces the process logger.
func Init(opts Options) *logrus.Logger {
	l := New(opts)
	mu.Lock()
	global = l
	mu.Unlock()
	return l
}

func Get() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Get().WithField("component", name)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
