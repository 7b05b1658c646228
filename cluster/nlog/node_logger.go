/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package nlog

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/InfamousVague/umbra/cluster/node"
	"go.uber.org/zap"
)

// Logger is something that can print, using Logf, a format string
type Logger interface {
	Logf(format string, v ...any)
}

// subsystemLogger is a logger that handles only one file out of all that are opened by its logger
type subsystemLogger struct {
	filename string
	logger   *RelayLogger
}

// Logf for a subsystem logger is just a wrap for the Logs of its internal logger, giving its only filename
func (s *subsystemLogger) Logf(format string, v ...any) {
	s.logger.Logf(s.filename, format, v...)
}

// logEntry is an helper struct that can be used to send a couple (filename, formatted string) onto the log channel
type logEntry struct {
	filename  string
	formatted string
}

// RelayLogger writes to one log file per subsystem from one single struct, and mirrors every line to the console through zap.
// It's safe to share amongst goroutines since it has an internal lock
type RelayLogger struct {
	id        node.RelayId // Id of the relay, used for the prefix string during logging
	directory string       // Folder holding the subsystem files

	fileMapper map[string]*os.File    // Maps a filename to an OS file (used only to be able to deallocate it later)
	logMapper  map[string]*log.Logger // Maps a filename to the corresponding logger
	console    *zap.SugaredLogger     // Console mirror, nil when disabled

	lock           sync.RWMutex
	clock          *node.LogicalClock                // logical clock, used to number lines across files
	currentLogFunc func(*log.Logger, string, ...any) // Current logging function (alternating between defaultLogf and nilLogf)
	enabled        bool                              // Mirrors currentLogFunc, gates the console mirror

	inbox chan logEntry // Log channel, formatted strings are sent here instead of directly writing to files
}

// NewRelayLogger Creates and returns a RelayLogger writing under directory.
// When pretty is set the console mirror uses zap's development encoder, otherwise the production JSON one.
// When successful, error is nil
func NewRelayLogger(id node.RelayId, directory string, logging, pretty bool, clock *node.LogicalClock) (*RelayLogger, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	var base *zap.Logger
	var err error
	if pretty {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("Could not build the console logger: %v", err)
	}

	r := &RelayLogger{
		id:             id,
		directory:      directory,
		fileMapper:     make(map[string]*os.File),
		logMapper:      make(map[string]*log.Logger),
		console:        base.Sugar().With("relay", string(id)),
		currentLogFunc: nilLogf,
		inbox:          make(chan logEntry, 600),
		clock:          clock,
	}

	if logging {
		r.currentLogFunc = defaultLogf
		r.enabled = true
	}

	return r, nil
}

// RegisterSubsystem registers a new subsystem, returning a Logger that can write to the file filename.
// If successful, error is nil
func (r *RelayLogger) RegisterSubsystem(filename string) (Logger, error) {
	file, err := os.OpenFile(filepath.Join(r.directory, filename+".log"), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.logMapper[filename] = log.New(file, fmt.Sprintf("[[Relay %s] %s]: ", r.id, filename), log.Ldate|log.Ltime)
	r.fileMapper[filename] = file
	return &subsystemLogger{filename, r}, nil
}

// GetSubsystemLogger retrieves a subsystem logger, if previously registerd.
// If successful, error is nil
func (r *RelayLogger) GetSubsystemLogger(filename string) (Logger, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if _, ok := r.logMapper[filename]; !ok {
		return nil, fmt.Errorf("The subsystem was not registered")
	}
	return &subsystemLogger{filename, r}, nil
}

// EnableLogging enables the logging done by this logger
func (r *RelayLogger) EnableLogging() {
	r.lock.Lock()
	r.currentLogFunc = defaultLogf
	r.enabled = true
	r.lock.Unlock()
}

// DisableLogging disables the logging done by this logger
func (r *RelayLogger) DisableLogging() {
	r.lock.Lock()
	r.currentLogFunc = nilLogf
	r.enabled = false
	r.lock.Unlock()
}

// Logf formats a string using format and v, and appends it to a logging channel, alongside the file, filename, it will be written to.
// The line is dropped when the channel is full, for instance once Run has returned
func (r *RelayLogger) Logf(filename, format string, v ...any) {
	select {
	case r.inbox <- logEntry{filename, fmt.Sprintf("{%d}. %s", r.clock.IncrementClock(), fmt.Sprintf(format, v...))}:
	default:
	}
}

// Run waits either on the log channel or ctx.Done()
// When ctx.Done(), the caller has shut down and we deallocate resources
// When a message arrives on the log channel, we write it accordingly
func (r *RelayLogger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case msg := <-r.inbox:
			r.actualWrite(msg.filename, msg.formatted)
		}
	}
}

// actualWrite is the function that writes the string formatted in the file filename
// When successful, error is nil
func (r *RelayLogger) actualWrite(filename, formatted string) error {
	r.lock.Lock()
	logFunc := r.currentLogFunc
	logger, ok := r.logMapper[filename]
	console := r.console
	enabled := r.enabled
	r.lock.Unlock()

	if !ok {
		return fmt.Errorf("Logger is not setup for this filename")
	}
	logFunc(logger, "%s", formatted)
	if enabled && console != nil {
		console.Infow(formatted, "subsystem", filename)
	}
	return nil
}

// CloseAll closes all the open files that the loggers are using
func (r *RelayLogger) CloseAll() {
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, file := range r.fileMapper {
		file.Sync()
		file.Close()
	}
	clear(r.fileMapper)
	clear(r.logMapper)
	if r.console != nil {
		r.console.Sync()
	}
}

// defaultLogf is a log function that writes to a logger l
func defaultLogf(l *log.Logger, format string, a ...any) {
	l.Printf(format, a...)
}

// nilLogf is a log function that does nothing, which gets called when logging is disabled
func nilLogf(*log.Logger, string, ...any) {}
