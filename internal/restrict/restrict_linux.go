// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

//go:build linux && !android

package restrict

import "github.com/landlock-lsm/go-landlock/landlock"

// Do restricts filesystem access of all goroutines of this program to rules.
// Network access is left alone.
func Do(rules ...landlock.Rule) error {
	return landlock.V5.BestEffort().RestrictPaths(rules...)
}
