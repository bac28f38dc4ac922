package frame

import (
	"bytes"
	"strconv"
	"strings"
)

// RegistryEntry is one "hex-window-id name" token of the root registry.
type RegistryEntry struct {
	Window uint32
	Name   string
}

// ParseRegistry reads the root registry property. Blank and unparseable
// tokens are skipped.
func ParseRegistry(raw []byte) []RegistryEntry {
	var out []RegistryEntry
	for _, tok := range bytes.Split(raw, []byte{0}) {
		s := strings.TrimSpace(string(tok))
		if s == "" {
			continue
		}
		id, name, ok := strings.Cut(s, " ")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		win, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(id), "0x"), 16, 32)
		if err != nil {
			continue
		}
		out = append(out, RegistryEntry{Window: uint32(win), Name: name})
	}
	return out
}

func EncodeRegistry(entries []RegistryEntry) []byte {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(strconv.FormatUint(uint64(e.Window), 16))
		b.WriteByte(' ')
		b.WriteString(e.Name)
		b.WriteByte(0)
	}
	return []byte(b.String())
}
