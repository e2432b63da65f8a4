package logging

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dkhoanguyen/playground/internal/env"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// KeepDays is how many daily log files of each kind survive pruning.
const KeepDays = 7

const dateLayout = "2006-01-02"

// ParseLevel accepts the usual level names plus the aliases warning and
// critical. Unknown names fall back to warn.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "error":
		return zapcore.ErrorLevel
	case "critical", "fatal":
		return zapcore.DPanicLevel
	default:
		return zapcore.WarnLevel
	}
}

// Make builds the application logger: a console core on stdout, a JSON core
// writing <app>-<date>.log and a JSON core writing <app>_error-<date>.log for
// errors only. Files roll over at midnight and only the last KeepDays days
// are kept. The returned func flushes the logger and closes both files.
func Make(config *env.Config) (*zap.Logger, func() error, error) {
	if err := os.MkdirAll(config.LogDir, os.ModePerm); err != nil {
		return nil, nil, errors.Wrap(err, "create log directory")
	}

	level := zap.NewAtomicLevelAt(ParseLevel(config.LogLevel))

	mainFile, err := NewDailyFile(config.LogDir, config.AppName, KeepDays)
	if err != nil {
		return nil, nil, err
	}
	errorFile, err := NewDailyFile(config.LogDir, config.AppName+"_error", KeepDays)
	if err != nil {
		return nil, nil, multierr.Append(err, mainFile.Close())
	}

	// Console encoder
	consoleCfg := zap.NewProductionEncoderConfig()
	consoleCfg.TimeKey = "@timestamp"
	consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if config.IsDevelopment() {
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	// File encoder
	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.TimeKey = "@timestamp"
	fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	errorLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel && level.Enabled(l)
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), mainFile, level),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), errorFile, errorLevel),
	)
	logger := zap.New(core, zap.AddCaller(), zap.Fields(zap.String("app", config.AppName)))
	closeFiles := func() error {
		// stdout may not support fsync; only the files matter here.
		_ = logger.Sync()
		return multierr.Combine(mainFile.Close(), errorFile.Close())
	}
	return logger, closeFiles, nil
}

// DailyFile is a zapcore.WriteSyncer appending to <dir>/<name>-<date>.log.
// The first write of a new day switches to a new file and prunes old ones.
type DailyFile struct {
	mu   sync.Mutex
	dir  string
	name string
	keep int
	now  func() time.Time

	day  string
	file *os.File
}

func NewDailyFile(dir, name string, keep int) (*DailyFile, error) {
	df := &DailyFile{dir: dir, name: name, keep: keep, now: time.Now}
	if err := df.rotate(df.now().Format(dateLayout)); err != nil {
		return nil, err
	}
	return df, nil
}

// Path is the file currently written to.
func (df *DailyFile) Path() string {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.path(df.day)
}

func (df *DailyFile) path(day string) string {
	return filepath.Join(df.dir, df.name+"-"+day+".log")
}

func (df *DailyFile) Write(p []byte) (int, error) {
	df.mu.Lock()
	defer df.mu.Unlock()
	if day := df.now().Format(dateLayout); day != df.day {
		if err := df.rotate(day); err != nil {
			return 0, err
		}
	}
	return df.file.Write(p)
}

func (df *DailyFile) Sync() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.file.Sync()
}

func (df *DailyFile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	return df.file.Close()
}

func (df *DailyFile) rotate(day string) error {
	file, err := os.OpenFile(df.path(day), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	if df.file != nil {
		_ = df.file.Close()
	}
	df.file = file
	df.day = day
	return df.prune()
}

// prune removes all but the newest keep files of this name. Dates sort
// lexically, so the file names do too.
func (df *DailyFile) prune() error {
	matches, err := filepath.Glob(filepath.Join(df.dir, df.name+"-*.log"))
	if err != nil {
		return err
	}
	own := matches[:0]
	for _, match := range matches {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(match), df.name+"-"), ".log")
		if _, err := time.Parse(dateLayout, day); err == nil {
			own = append(own, match)
		}
	}
	if len(own) <= df.keep {
		return nil
	}
	sort.Strings(own)
	var errs error
	for _, old := range own[:len(own)-df.keep] {
		errs = multierr.Append(errs, os.Remove(old))
	}
	return errs
}
