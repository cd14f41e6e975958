// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package cfilter decodes version 2 Golomb-Coded Set block filters into the
membership sets tested by the matcher.

Filters are decoded from the serialization produced by the dcrd gcs package.
Set.Values32 and Set.Chunks produce filter sets sized for Matcher.Match, while
Set.Match and Set.MatchAny test membership on the CPU.
*/
package cfilter
