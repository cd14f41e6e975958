// Copyright (c) 2017-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

import (
	_ "embed"
)

// sampleCfmatchConf is a string containing the commented example config for
// cfmatch.
//
//go:embed sample-cfmatch.conf
var sampleCfmatchConf string

// Cfmatch returns a string containing the commented example config for
// cfmatch.
func Cfmatch() string {
	return sampleCfmatchConf
}
