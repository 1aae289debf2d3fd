// Package buffer implements the append-only log file a channel writes its
// samples to between start and stop.
package buffer

import (
	"bufio"
	"io"
	"os"
	"strings"

	"codeberg.org/mutker/infologger/internal/errors"
)

const (
	defaultFilePerm = 0o644
	fileExt         = ".log"
	maxLineSize     = 1 << 20
)

// Buffer is a durable, line oriented append log backed by one file.
// It is not safe for concurrent use.
type Buffer struct {
	path   string
	file   *os.File
	closed bool
}

// FileName builds <dir>/<appName><suffix>.log. A separator is only added
// when dir does not already end in one.
func FileName(dir, appName, suffix string) string {
	name := dir
	if !strings.HasSuffix(name, "/") && !strings.HasSuffix(name, `\`) {
		name += string(os.PathSeparator)
	}

	return name + appName + suffix + fileExt
}

// Open creates or truncates the file at path for reading and writing.
func Open(path string) (*Buffer, error) {
	errFactory := errors.New()

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	return &Buffer{path: path, file: file}, nil
}

// Path returns the backing file path.
func (b *Buffer) Path() string {
	return b.path
}

// Append writes one line and its terminator straight to the file.
func (b *Buffer) Append(line string) error {
	errFactory := errors.New()
	if b.closed {
		return errFactory.New(ErrClosed)
	}

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if _, err := b.file.WriteString(line + "\n"); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

// ReadAll returns every line written so far, in order.
func (b *Buffer) ReadAll() ([]string, error) {
	errFactory := errors.New()
	if b.closed {
		return nil, errFactory.New(ErrClosed)
	}

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}

	var lines []string
	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}

	return lines, nil
}

// Close releases the file and leaves it on disk. Unread data is abandoned.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.file.Close(); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}

	return nil
}

// Remove closes the buffer and deletes its file.
func (b *Buffer) Remove() error {
	closeErr := b.Close()

	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(ErrRemoveFailed, err)
	}

	return closeErr
}
