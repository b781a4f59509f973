package server

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
)

// RenderListing renders the immediate children of dir as an HTML page.
// Entries are sorted by name; directories get a trailing "/" in both the
// href and the label and are shown bold italic.
func RenderListing(displayPath, dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var buf bytes.Buffer
	buf.WriteString("<html><body>")
	fmt.Fprintf(&buf, "<h2>Index of %s</h2>", html.EscapeString(displayPath))
	buf.WriteString("<ul>")

	for _, e := range entries {
		name := e.Name()
		href := html.EscapeString(url.PathEscape(name))
		label := html.EscapeString(name)

		if e.IsDir() {
			fmt.Fprintf(&buf, "<li><b><i><a href=\"%s/\">%s/</a></i></b></li>", href, label)
			continue
		}

		size := ""
		if info, err := e.Info(); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		fmt.Fprintf(&buf, "<li><a href=\"%s\">%s</a>%s</li>", href, label, size)
	}

	buf.WriteString("</ul></body></html>")
	return buf.Bytes(), nil
}
