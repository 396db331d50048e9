package transport

import (
	"context"
	"fmt"
	"os"
	"time"
)

// File is a write-only Transport that appends packet bytes to a local
// file, used for the server's file-upload collaborator (§6 "CLI
// reference binary" upload-file flag) and for offline simplex capture.
type File struct {
	path string
	f    *os.File
}

// NewFile returns a File transport that appends to path on Open.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Open(ctx context.Context) error {
	if f.f != nil {
		return nil
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("transport: file open %s: %w", f.path, err)
	}
	f.f = file
	return nil
}

func (f *File) Close(sendPending bool) error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

func (f *File) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	return 0, nil
}

func (f *File) WritePacket(ctx context.Context, buf []byte) error {
	if f.f == nil {
		return fmt.Errorf("transport: file write: not open")
	}
	_, err := f.f.Write(buf)
	if err != nil {
		return fmt.Errorf("transport: file write: %w", err)
	}
	return nil
}

func (f *File) ReadFlush() error { return nil }

func (f *File) IsOpen() bool { return f.f != nil }

func (f *File) Media() Media { return MediaFile }
