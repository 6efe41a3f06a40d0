// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package restrict sandboxes the program with the [Landlock] Linux Security
// Module on systems that support it.
//
// On other systems, and on kernels without Landlock, it has no effect.
//
// [Landlock]: https://landlock.io
package restrict
