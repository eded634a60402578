package reference

import "strings"

// BlocklistDirectory описывает один справочник нежелательных кодов:
// токены, которые генератор идентификаторов не должен выдавать.
type BlocklistDirectory struct {
	Name  string        `yaml:"name"`
	Codes []BlockedCode `yaml:"codes"`
}

type BlockedCode struct {
	Code   string `yaml:"code"`
	Reason string `yaml:"reason,omitempty"`
}

// Set собирает множество заблокированных токенов (верхний регистр, без пробелов).
func (d BlocklistDirectory) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(d.Codes))
	for _, c := range d.Codes {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if code != "" {
			out[code] = struct{}{}
		}
	}
	return out
}
