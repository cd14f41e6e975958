// Copyright (c) 2020-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package progresslog provides periodic logging for block filter scanning.

Tests are included to ensure proper functionality.

## Feature Overview

- Maintains cumulative totals about filters between each logging interval
  - Total number of filters
  - Total number of filter values
  - Total number of matching filters
- Logs all cumulative data every 10 seconds
- Immediately logs any outstanding data when forced, such as after the final
  filter
*/
package progresslog
