// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package invocation

import (
	"strings"
)

// UserDataSeparator separates keys from values and entries from each other
// in exported user data.
const UserDataSeparator = "@"

var (
	escaper   = strings.NewReplacer("%", "%25", UserDataSeparator, "%40")
	unescaper = strings.NewReplacer("%40", UserDataSeparator, "%25", "%")
)

// ExportUserData encodes the propagating attributes as a flat
// "k1@v1@k2@v2" string. Separators inside keys or values are escaped, so any
// text survives the round trip. An empty string means there is nothing to
// propagate.
func (c *Context) ExportUserData() string {
	if c.attributes.Len() == 0 {
		return ""
	}
	var b strings.Builder
	c.attributes.Each(func(k, v string) {
		if strings.TrimSpace(k) == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString(UserDataSeparator)
		}
		b.WriteString(escaper.Replace(k))
		b.WriteString(UserDataSeparator)
		b.WriteString(escaper.Replace(v))
	})
	return b.String()
}

// ImportUserData replaces the propagating attributes with those decoded from
// data. Nothing happens when data is blank, decodes to no entries, or user
// data propagation is switched off.
func (c *Context) ImportUserData(data string) {
	if strings.TrimSpace(data) == "" {
		return
	}
	if c.userDataEnabled != nil && !c.userDataEnabled() {
		return
	}

	parts := strings.Split(data, UserDataSeparator)
	var imported Attributes
	for i := 0; i+1 < len(parts); i += 2 {
		key := strings.TrimSpace(unescaper.Replace(parts[i]))
		value := strings.TrimSpace(unescaper.Replace(parts[i+1]))
		value, err := c.checkAttribute(key, value)
		if err != nil {
			continue
		}
		imported.Put(key, value)
	}
	if imported.Len() == 0 {
		return
	}
	c.attributes = imported
}
