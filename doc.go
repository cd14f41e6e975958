// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
cfmatch scans Decred version 2 block filters for blocks that may pay to a set of
watched addresses and output scripts.

Every filter is decoded and tested against the watched scripts by a matcher that
pipelines requests through a compute device.  The hash of each block whose
filter matches is written on its own line in the order the filters were read.
Filters are probabilistic, so a match means the block is worth fetching rather
than a guarantee that it pays to a watched script.

The long form of all of the options (except -C) can be specified in a
configuration file that is automatically parsed when cfmatch starts up.  By
default, the configuration file is located at ~/.cfmatch/cfmatch.conf on
POSIX-style operating systems and %LOCALAPPDATA%\cfmatch\cfmatch.conf on
Windows.  The -C (--configfile) flag can be used to override this location.

Usage:

	cfmatch [OPTIONS]

Application Options:

	-V, --version         Display version information and exit
	-A, --appdata=        Path to application home directory
	-C, --configfile=     Path to configuration file
	    --logdir=         Directory to log output
	    --logsize=        Maximum size of log file before it is rotated
	                      (default: 10M)
	    --nofilelogging   Disable file logging
	-d, --debuglevel=     Logging level for all subsystems {trace, debug, info,
	                      warn, error, critical} -- You may also specify
	                      <subsystem>=<level>,<subsystem2>=<level>,... to set
	                      the log level for individual subsystems -- Use show
	                      to list available subsystems (default: info)
	    --testnet         Decode addresses for the test network
	    --simnet          Decode addresses for the simulation test network
	    --regnet          Decode addresses for the regression test network
	-a, --address=        Watch the payment script of an address; may be
	                      specified multiple times
	    --script=         Watch a hex encoded output script; may be specified
	                      multiple times
	-f, --filters=        File of block filters to scan, - for stdin; .zst and
	                      .lz4 files are decompressed
	-o, --output=         Write matching block hashes to this file instead of
	                      stdout
	    --execwidth=      Thread execution width of the host device (0 selects
	                      based on the CPU)
	    --workers=        Maximum goroutines per dispatch (0 selects GOMAXPROCS)
	    --corpuscache=    Number of built corpora kept for reuse (0 disables
	                      the cache) (default: 4)
	    --profile=        Enable HTTP profiling on given [addr:]port -- NOTE
	                      port must be between 1024 and 65535
	    --profileallownonloopback
	                      Allow the profile server to listen on non loopback
	                      addresses
	    --cpuprofile=     Write CPU profile to the specified file

Help Options:

	-h, --help           Show this help message

Filter files hold one filter per line in the form

	<block hash> <merkle root> <filter hex>

where the filter is the serialized version 2 filter of the block and the merkle
root is the one committed to by the block header, which keys the filter.  The
filter field is omitted for blocks with an empty filter.  Blank lines and lines
starting with # are ignored.
*/
package main
