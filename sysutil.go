// sysutil.go: small OS-facing helpers kept out of sink.go so its Config
// stays free of os-package types in its field list.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cyclos

import "os"

func osFileMode(m uint32) os.FileMode {
	return os.FileMode(m)
}

func pidOf() int {
	return os.Getpid()
}
