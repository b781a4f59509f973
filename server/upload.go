package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const DefaultUploadBufferSize = 64 << 10

var DefaultAllowedExtensions = []string{".txt", ".jpg", ".png", ".mp4"}

// Receiver persists UPLOAD bodies into Dir.
type Receiver struct {
	Dir               string
	AllowedExtensions []string
	BufferSize        int
	// Confine rejects names that are not a single path element.
	Confine bool
}

type UploadResult struct {
	Descriptor UploadDescriptor
	Path       string
	Received   uint64
}

// Message is the text sent after SUCCESS.
func (r UploadResult) Message() string {
	return fmt.Sprintf("File %s uploaded successfully.", r.Descriptor.FileName)
}

// Receive copies exactly d.DeclaredSize bytes from src into the upload
// directory. The checks run in order: extension, name, directory, then the
// copy itself. An early end of src leaves the partial file in place.
func (rc *Receiver) Receive(d UploadDescriptor, src io.Reader) (UploadResult, error) {
	res := UploadResult{Descriptor: d}

	if !rc.allowed(d.FileName) {
		return res, newRequestError(KindValidation, "Invalid file type: "+d.FileName, nil)
	}

	if rc.Confine && !safeFileName(d.FileName) {
		return res, newRequestError(KindValidation, "Invalid file name: "+d.FileName, nil)
	}

	if err := os.MkdirAll(rc.Dir, 0o755); err != nil {
		return res, newRequestError(KindIO, "Failed to create upload directory.", err)
	}

	if rc.Confine {
		res.Path = filepath.Join(rc.Dir, d.FileName)
	} else {
		res.Path = rc.Dir + string(filepath.Separator) + d.FileName
	}

	f, err := os.Create(res.Path)
	if err != nil {
		return res, newRequestError(KindIO, "Error writing file: "+err.Error(), err)
	}

	received, copyErr := rc.copyExact(f, src, d.DeclaredSize, d.FileName)
	res.Received = received

	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = newRequestError(KindIO, "Error writing file: "+err.Error(), err)
	}
	if copyErr != nil {
		return res, copyErr
	}

	return res, nil
}

// copyExact moves n bytes through a bounded buffer. Read failures, EOF
// included, surface as an incomplete upload; write failures as a write error.
func (rc *Receiver) copyExact(dst io.Writer, src io.Reader, n uint64, name string) (uint64, error) {
	size := rc.BufferSize
	if size <= 0 {
		size = DefaultUploadBufferSize
	}
	buf := make([]byte, size)

	var total uint64
	for total < n {
		want := uint64(len(buf))
		if left := n - total; left < want {
			want = left
		}

		read, rerr := src.Read(buf[:want])
		if read > 0 {
			if _, werr := dst.Write(buf[:read]); werr != nil {
				return total, newRequestError(KindIO, "Error writing file: "+werr.Error(), werr)
			}
			total += uint64(read)
		}

		if rerr != nil {
			if total == n {
				break
			}
			if !errors.Is(rerr, io.EOF) {
				log.Printf("[upload] read error after %d/%d bytes: %v", total, n, rerr)
			}
			return total, newRequestError(KindIO, "File upload incomplete for: "+name, rerr)
		}
	}

	return total, nil
}

func (rc *Receiver) allowed(name string) bool {
	exts := rc.AllowedExtensions
	if exts == nil {
		exts = DefaultAllowedExtensions
	}

	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// safeFileName accepts a single path element only.
func safeFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}
