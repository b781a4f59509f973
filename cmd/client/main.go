package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const chunkSize = 1024

var validExtensions = []string{".txt", ".jpg", ".png", ".mp4"}

func validFileType(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range validExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// uploadFile sends path to the server at addr and returns the server's
// one-line reply with the line terminator stripped.
func uploadFile(addr, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "UPLOAD %s %d\r\n", filepath.Base(path), info.Size()); err != nil {
		return "", err
	}

	buf := make([]byte, chunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, err := conn.Write(buf[:n]); err != nil {
				return "", fmt.Errorf("send body: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", rerr
		}
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read response: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type uploader struct {
	addr string
	dir  string
	out  io.Writer
	wg   sync.WaitGroup
}

// submit validates name and starts its upload in the background.
func (u *uploader) submit(name string) {
	if !validFileType(name) {
		fmt.Fprintf(u.out, "Invalid file format: %s\n", name)
		return
	}

	path := filepath.Join(u.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		fmt.Fprintf(u.out, "File not found: %s\n", path)
		return
	}

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		resp, err := uploadFile(u.addr, path)
		if err != nil {
			fmt.Fprintf(u.out, "Error uploading file: %s. %v\n", name, err)
			return
		}
		fmt.Fprintf(u.out, "server response (%s, %s): %s\n", name, humanize.Bytes(uint64(info.Size())), resp)
	}()
}

func (u *uploader) run(in io.Reader) {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(u.out, "Enter the file name to upload (or type 'q' to quit): ")
		if !sc.Scan() {
			break
		}
		name := strings.TrimSpace(sc.Text())
		if strings.EqualFold(name, "q") {
			break
		}
		if name == "" {
			continue
		}
		u.submit(name)
	}

	// let uploads that are already running finish
	u.wg.Wait()
}

func main() {
	addr := flag.String("addr", "localhost:6789", "file server address")
	dir := flag.String("dir", ".", "directory file names are resolved against")
	flag.Parse()

	u := &uploader{addr: *addr, dir: *dir, out: &syncWriter{w: os.Stdout}}
	u.run(os.Stdin)
}

// syncWriter serialises output from concurrent uploads.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
