// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package remote

import "strings"

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuotePath quotes a path but leaves a leading ~/ outside the quotes so the
// remote shell still expands it.
func QuotePath(p string) string {
	if p == "~" {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		return "~/" + ShellQuote(p[2:])
	}
	return ShellQuote(p)
}
