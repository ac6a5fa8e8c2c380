package netio

import (
	"fmt"
	"strconv"
	"strings"
)

// sgrSpanClass maps the handful of SGR (Select Graphic Rendition)
// codes scripts realistically emit to a CSS-ish class name. Anything
// not in this table is dropped rather than guessed at.
var sgrSpanClass = map[int]string{
	1:  "bold",
	4:  "underline",
	30: "fg-black", 31: "fg-red", 32: "fg-green", 33: "fg-yellow",
	34: "fg-blue", 35: "fg-magenta", 36: "fg-cyan", 37: "fg-white",
}

// AnsiToSpans converts ANSI SGR escape sequences in s into <span
// class="..."> tags for framed (websocket) clients that render HTML
// rather than a terminal. This is scoped to the framed-output contract
// only — it is not a general terminal-cosmetics facility (spec.md §1
// Non-goals) and stream clients never see it.
//
// An ESC [ sequence with unrecognized codes is dropped rather than
// passed through, and an unterminated one drops the rest of s. An ESC
// byte not followed by '[' is copied through unchanged.
func AnsiToSpans(s string) string {
	var out strings.Builder
	open := false
	i := 0
	for i < len(s) {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			end := strings.IndexByte(s[i:], 'm')
			if end == -1 {
				break // unterminated escape: drop the remainder
			}
			codes := s[i+2 : i+end]
			i += end + 1
			classes := classesFor(codes)
			if open {
				out.WriteString("</span>")
				open = false
			}
			if len(classes) > 0 {
				fmt.Fprintf(&out, `<span class="%s">`, strings.Join(classes, " "))
				open = true
			}
			continue
		}
		out.WriteByte(s[i])
		i++
	}
	if open {
		out.WriteString("</span>")
	}
	return out.String()
}

func classesFor(codes string) []string {
	if codes == "" || codes == "0" {
		return nil
	}
	var classes []string
	for _, part := range strings.Split(codes, ";") {
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		if class, ok := sgrSpanClass[n]; ok {
			classes = append(classes, class)
		}
	}
	return classes
}

// StripAnsi removes every SGR escape sequence from s without emitting
// any replacement markup, for framed clients that asked for plain
// text.
func StripAnsi(s string) string {
	var out strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			end := strings.IndexByte(s[i:], 'm')
			if end == -1 {
				break
			}
			i += end + 1
			continue
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String()
}
