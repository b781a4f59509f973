package server

import "time"

type Method int

const (
	MethodOther Method = iota
	MethodGet
	MethodUpload
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodUpload:
		return "UPLOAD"
	default:
		return "OTHER"
	}
}

func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(b []byte) error {
	switch string(b) {
	case "GET":
		*m = MethodGet
	case "UPLOAD":
		*m = MethodUpload
	default:
		*m = MethodOther
	}
	return nil
}

// Request is one parsed request line. It lives for a single connection.
type Request struct {
	Method  Method   `json:"method"`
	RawLine string   `json:"raw_line"`
	Args    []string `json:"args"`
}

type ResourceKind int

const (
	KindMissing ResourceKind = iota
	KindFile
	KindDirectory
)

func (k ResourceKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "missing"
	}
}

type ResolvedResource struct {
	Kind         ResourceKind
	AbsolutePath string
	SizeBytes    uint64
}

// UploadDescriptor is taken from an UPLOAD line. DeclaredSize is trusted as
// the exact number of body bytes that follow the line.
type UploadDescriptor struct {
	FileName     string `json:"file_name"`
	DeclaredSize uint64 `json:"declared_size"`
}

type Header struct {
	Name  string
	Value string
}

// ResponseHeader frames a GET response. ContentLength must equal the number
// of body bytes written.
type ResponseHeader struct {
	Status        string
	ContentType   string
	ContentLength uint64
	ExtraHeaders  []Header
}

// LogEntry is one audit record. MimeOrMessage holds the content type for GET
// style responses and the result message for uploads.
type LogEntry struct {
	ID            string    `json:"id"`
	Time          time.Time `json:"time"`
	Method        Method    `json:"method"`
	Request       string    `json:"request"`
	Status        int       `json:"status"`
	MimeOrMessage string    `json:"mime_or_message"`
}
