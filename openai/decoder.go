package openai

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/refinekit/refine"
)

// LineDecoder turns raw byte chunks into complete newline-delimited
// lines, holding back an incomplete trailing line across writes. It
// never fails on malformed input: garbage is yielded as a line for the
// frame parser to reject.
type LineDecoder struct {
	buf []byte
}

// Write appends a chunk and returns every complete line it unlocked, in
// arrival order. A trailing carriage return is stripped from each line.
func (d *LineDecoder) Write(p []byte) []string {
	d.buf = append(d.buf, p...)
	var lines []string
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return lines
		}
		line := strings.TrimSuffix(string(d.buf[:i]), "\r")
		d.buf = d.buf[i+1:]
		lines = append(lines, line)
	}
}

// PushBack re-prepends an unparsed line to the head of the pending
// buffer. Used when a JSON frame was split across chunk boundaries: the
// line rejoins the buffer unterminated and completes once more bytes
// arrive.
func (d *LineDecoder) PushBack(line string) {
	if line == "" {
		return
	}
	buf := make([]byte, 0, len(line)+len(d.buf))
	buf = append(buf, line...)
	buf = append(buf, d.buf...)
	d.buf = buf
}

// Flush returns the residual unterminated line at stream end, so no
// trailing frame is silently lost. Reports false when the buffer is
// empty.
func (d *LineDecoder) Flush() (string, bool) {
	if len(d.buf) == 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(d.buf), "\r")
	d.buf = nil
	return line, true
}

type frameKind int

const (
	frameNone  frameKind = iota // blank line, SSE comment, or frame without content
	frameDelta                  // carries a content fragment
	frameDone                   // terminal sentinel
	frameBad                    // payload did not parse as JSON
)

// frame is the parsed form of one SSE line.
type frame struct {
	kind  frameKind
	delta string
	usage *refine.Usage
}

const dataPrefix = "data: "

// parseFrame classifies one decoded line. Parse failures are not errors:
// frameBad signals the caller to wait for more input (split-frame
// boundary) or, at stream end, to ignore the line.
func parseFrame(line string) frame {
	if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, dataPrefix) {
		return frame{kind: frameNone}
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "[DONE]" || payload == `"[DONE]"` {
		return frame{kind: frameDone}
	}

	var chunk apiChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return frame{kind: frameBad}
	}

	f := frame{kind: frameNone}
	if chunk.Usage != nil {
		f.usage = &refine.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
	}
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
		f.kind = frameDelta
		f.delta = chunk.Choices[0].Delta.Content
	}
	return f
}
