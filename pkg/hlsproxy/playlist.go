package hlsproxy

import (
	"bufio"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var uriAttrRegex = regexp.MustCompile(`URI="([^"]*)"`)

// PlaylistUrlWalk calls replace for every URI in the playlist, both on
// URI lines and in quoted URI attributes of tags, and returns the result.
func PlaylistUrlWalk(reader io.Reader, replace func(string) string) string {
	var out strings.Builder
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		indent := line[:strings.Index(line, trimmed)]

		switch {
		case trimmed == "":
			out.WriteString(line)
		case strings.HasPrefix(trimmed, "#"):
			out.WriteString(uriAttrRegex.ReplaceAllStringFunc(line, func(attr string) string {
				uri := uriAttrRegex.FindStringSubmatch(attr)[1]
				return `URI="` + replace(uri) + `"`
			}))
		default:
			out.WriteString(indent + replace(trimmed))
		}
		out.WriteByte('\n')
	}

	return out.String()
}

// RelativePath maps u into the proxy: absolute addresses under baseUrl and
// root-relative paths get prefix, other relative paths are only cleaned.
func RelativePath(baseUrl, prefix, u string) string {
	base := strings.TrimRight(baseUrl, "/")
	prefix = "/" + strings.Trim(prefix, "/")

	var rest string
	switch {
	case base != "" && (u == base || strings.HasPrefix(u, base+"/")):
		rest = strings.TrimPrefix(u, base)
	case strings.HasPrefix(u, "/"):
		rest = u
	default:
		if parsed, err := url.Parse(u); err == nil && parsed.IsAbs() {
			// foreign origin stays untouched
			return u
		}
		return cleanKeepQuery(u)
	}

	if prefix == "/" {
		return cleanKeepQuery(rest)
	}
	return cleanKeepQuery(prefix + rest)
}

func cleanKeepQuery(u string) string {
	p, query, hasQuery := strings.Cut(u, "?")
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	if hasQuery {
		return cleaned + "?" + query
	}
	return cleaned
}
