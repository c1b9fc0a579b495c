// Package mimeparse extracts the subject and the text and HTML bodies of
// an inbound message. It understands single-part messages and one level of
// multipart, which is all the mailbox view needs.
package mimeparse

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// Parsed holds the fields shown to mailbox clients.
type Parsed struct {
	Subject string
	Text    string
	HTML    string
}

type part struct {
	header string
	body   string
}

var (
	boundaryRe = regexp.MustCompile(`(?i)boundary\s*=\s*(?:"([^"]+)"|([^\s;]+))`)
	tagRe      = regexp.MustCompile(`<[^>]*>`)
)

// Parse decomposes raw header and body text.
func Parse(raw string) Parsed {
	top := splitPart(raw)
	result := Parsed{Subject: subject(top.header)}

	var parts []part
	if boundary := findBoundary(top.header); boundary != "" {
		parts = splitMultipart(top.body, boundary)
	} else {
		parts = []part{top}
	}

	var text, html string
	var haveText, haveHTML bool
	for _, p := range parts {
		lower := strings.ToLower(p.header)
		switch {
		case !haveHTML && strings.Contains(lower, "text/html"):
			html, haveHTML = decodeBody(p), true
		case !haveText && strings.Contains(lower, "text/plain"):
			text, haveText = decodeBody(p), true
		}
	}
	// A lone part that does not declare HTML is plain text.
	if len(parts) == 1 && !haveHTML && !haveText {
		text, haveText = decodeBody(parts[0]), true
	}

	result.Text = strings.TrimSpace(text)
	result.HTML = strings.TrimSpace(html)
	switch {
	case haveText && !haveHTML:
		result.HTML = TextToHTML(result.Text)
	case haveHTML && !haveText:
		result.Text = StripTags(result.HTML)
	}
	return result
}

// TextToHTML escapes plain text and wraps it in a preformatted block.
func TextToHTML(text string) string {
	escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(text)
	return "<pre>" + escaped + "</pre>"
}

// StripTags removes markup, leaving the text content.
func StripTags(html string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(html, ""))
}

// splitPart splits on the first blank line. Without one, everything is header.
func splitPart(raw string) part {
	crlf := strings.Index(raw, "\r\n\r\n")
	lf := strings.Index(raw, "\n\n")
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return part{header: raw[:crlf], body: raw[crlf+4:]}
	case lf >= 0:
		return part{header: raw[:lf], body: raw[lf+2:]}
	}
	return part{header: raw}
}

func findBoundary(header string) string {
	m := boundaryRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func splitMultipart(body, boundary string) []part {
	delim := regexp.MustCompile(regexp.QuoteMeta("--"+boundary) + `(?:--)?`)
	var parts []part
	for _, segment := range delim.Split(body, -1) {
		segment = strings.TrimLeft(segment, "\r\n")
		if strings.TrimSpace(segment) == "" {
			continue
		}
		parts = append(parts, splitPart(segment))
	}
	return parts
}

// subject looks the header up case-insensitively, decoding RFC 2047
// encoded words when the block is well formed.
func subject(header string) string {
	if h, err := readHeader(header); err == nil {
		mh := mail.Header{Header: message.Header{Header: h}}
		if s, err := mh.Subject(); err == nil {
			return strings.TrimSpace(s)
		}
		return strings.TrimSpace(h.Get("Subject"))
	}
	return lookupHeader(header, "subject")
}

// decodeBody undoes Content-Transfer-Encoding. Bodies with an encoding or
// header block go-message cannot read are returned as they are.
func decodeBody(p part) string {
	h, err := readHeader(p.header)
	if err != nil || h.Get("Content-Transfer-Encoding") == "" {
		return p.body
	}
	entity, err := message.New(message.Header{Header: h}, strings.NewReader(p.body))
	if err != nil && !message.IsUnknownCharset(err) {
		return p.body
	}
	decoded, err := io.ReadAll(entity.Body)
	if err != nil {
		return p.body
	}
	return string(decoded)
}

func readHeader(block string) (textproto.Header, error) {
	return textproto.ReadHeader(bufio.NewReader(strings.NewReader(block + "\r\n\r\n")))
}

func lookupHeader(block, name string) string {
	var value string
	found := false
	for _, line := range strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n") {
		if found && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			value += " " + strings.TrimSpace(line)
			continue
		}
		if found {
			break
		}
		key, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(key), name) {
			value, found = strings.TrimSpace(v), true
		}
	}
	return value
}
