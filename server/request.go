package server

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// MaxRequestLineBytes bounds a single request line.
const MaxRequestLineBytes = 8 << 10

// ParseRequestLine splits line on single spaces. Only an empty line fails;
// argument counts are checked by the method handlers.
func ParseRequestLine(line string) (*Request, error) {
	if line == "" {
		return nil, ErrEmptyRequest
	}

	tokens := strings.Split(line, " ")

	req := &Request{
		RawLine: line,
		Args:    tokens[1:],
	}

	switch tokens[0] {
	case "GET":
		req.Method = MethodGet
	case "UPLOAD":
		req.Method = MethodUpload
	default:
		req.Method = MethodOther
	}

	return req, nil
}

// ParseUploadDescriptor reads "UPLOAD <fileName> <size>".
func ParseUploadDescriptor(req *Request) (UploadDescriptor, error) {
	if req == nil || req.Method != MethodUpload || len(req.Args) < 2 {
		return UploadDescriptor{}, newRequestError(KindValidation, "Invalid upload request.", nil)
	}

	size, err := strconv.ParseUint(req.Args[1], 10, 64)
	if err != nil {
		return UploadDescriptor{}, newRequestError(KindValidation, "Invalid upload size: "+req.Args[1], err)
	}

	return UploadDescriptor{
		FileName:     req.Args[0],
		DeclaredSize: size,
	}, nil
}

// readRequestLine reads up to and including '\n' and strips the terminator
// and an optional '\r'. If the stream ends first, whatever was read is the
// line; an empty read yields ErrEmptyRequest.
func readRequestLine(r *bufio.Reader) (string, error) {
	var line []byte

	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > MaxRequestLineBytes {
			return "", ErrRequestLineTooLong
		}
		line = append(line, chunk...)

		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return "", ErrEmptyRequest
			}
			break
		}
		return "", err
	}

	s := strings.TrimSuffix(string(line), "\n")
	s = strings.TrimSuffix(s, "\r")
	if s == "" {
		return "", ErrEmptyRequest
	}
	return s, nil
}
