package editor

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danmuck/vimctl/internal/protocol/session"
)

const (
	keysEsc    = `<C-\><C-N>`
	keysReturn = "<RETURN>"

	exprBufferList    = "Bufferlist()"
	exprCurrentBuffer = "bufnr('%').','.bufname('%')"
	exprForeground    = "foreground()"
)

// Buffer is one editor buffer with its name resolved to an absolute path.
type Buffer struct {
	Number int    `json:"number"`
	Path   string `json:"path"`
}

var filenameEscaper = strings.NewReplacer(
	`\`, `\\`,
	`?`, `\?`,
	`*`, `\*`,
	` `, `\ `,
	`'`, `\'`,
	`"`, `\"`,
	`[`, `\[`,
	"\t", "\\\t",
	`$`, `\$`,
)

// EscapeFilename escapes the characters the editor's ex command line treats
// specially in file arguments.
func EscapeFilename(name string) string {
	return filenameEscaper.Replace(name)
}

func (c *Client) SendKeys(server, keys string) bool {
	return c.messenger.SendKeys(server, keys)
}

// SendExpr evaluates expr on server and hands the raw result to cb. It
// returns the serial used, 0 when nothing was sent.
func (c *Client) SendExpr(server, expr string, cb session.Callback) (int, bool) {
	return c.messenger.SendExpr(server, expr, cb)
}

func (c *Client) SendEsc(server string) bool {
	return c.SendKeys(server, keysEsc)
}

func (c *Client) SendReturn(server string) bool {
	return c.SendKeys(server, keysReturn)
}

// SendEx leaves any pending mode and runs one ex command.
func (c *Client) SendEx(server, command string) bool {
	if !c.SendEsc(server) {
		return false
	}
	ok := c.SendKeys(server, ":"+command)
	return c.SendReturn(server) && ok
}

// EvaluateOption reads an option value, e.g. "filetype".
func (c *Client) EvaluateOption(server, option string, cb session.Callback) bool {
	_, ok := c.SendExpr(server, "&"+option, cb)
	return ok
}

func (c *Client) Foreground(server string) bool {
	_, ok := c.SendExpr(server, exprForeground, func(string) {})
	return ok
}

func (c *Client) ChangeBuffer(server string, nr int) bool {
	return c.SendEx(server, "b!"+strconv.Itoa(nr))
}

func (c *Client) CloseBuffer(server string) bool {
	return c.SendEx(server, "confirm bw")
}

// ChangeCursor moves the cursor to column x of line y.
func (c *Client) ChangeCursor(server string, x, y int) bool {
	if _, ok := c.SendExpr(server, fmt.Sprintf("cursor(%d, %d)", y, x), nil); !ok {
		return false
	}
	return c.SendEsc(server)
}

func (c *Client) SaveSession(server, name string) bool {
	return c.SendEx(server, "mks "+EscapeFilename(name))
}

func (c *Client) OpenFile(server, path string) bool {
	return c.SendEx(server, "confirm e "+EscapeFilename(c.AbsPath(server, path)))
}

// PreviewFile shows path in the preview window.
func (c *Client) PreviewFile(server, path string) bool {
	ok := c.SendEx(server, "pc")
	ok = c.SendEx(server, "set nopreviewwindow") && ok
	return c.SendEx(server, "pedit "+EscapeFilename(c.AbsPath(server, path))) && ok
}

func (c *Client) Quit(server string) bool {
	return c.SendEx(server, "q")
}

// GetBufferList lists the server's buffers. The reply has the form
// "nr:name;nr:name;"; error entries (starting with E) are skipped.
func (c *Client) GetBufferList(server string, cb func([]Buffer)) bool {
	_, ok := c.SendExpr(server, exprBufferList, func(raw string) {
		cb(c.parseBufferList(server, raw))
	})
	return ok
}

func (c *Client) parseBufferList(server, raw string) []Buffer {
	out := []Buffer{}
	for _, item := range strings.Split(strings.Trim(raw, ";"), ";") {
		if item == "" || strings.HasPrefix(item, "E") {
			continue
		}
		nrRaw, name, _ := strings.Cut(item, ":")
		nr, err := strconv.Atoi(strings.TrimSpace(nrRaw))
		if err != nil {
			c.log.Debug().Str("server", server).Str("entry", item).Msg("editor.Client.GetBufferList entry skipped")
			continue
		}
		out = append(out, Buffer{Number: nr, Path: c.AbsPath(server, name)})
	}
	return out
}

// GetCurrentBuffer reports the buffer shown in the server's current window.
func (c *Client) GetCurrentBuffer(server string, cb func(Buffer)) bool {
	_, ok := c.SendExpr(server, exprCurrentBuffer, func(raw string) {
		nrRaw, name, _ := strings.Cut(raw, ",")
		nr, err := strconv.Atoi(strings.TrimSpace(nrRaw))
		if err != nil {
			c.log.Debug().Str("server", server).Str("reply", raw).Msg("editor.Client.GetCurrentBuffer unexpected reply")
			return
		}
		cb(Buffer{Number: nr, Path: c.AbsPath(server, name)})
	})
	return ok
}

// AbsPath resolves name against the server's cached working directory. When
// none is cached yet it falls back to the default directory and starts a
// fetch. An empty name stays empty.
func (c *Client) AbsPath(server, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	cwd, ok := c.registry.Cwd(server)
	if !ok {
		cwd = c.defaultDir
		c.registry.FetchCwd(server)
	}
	return filepath.Join(cwd, name)
}
