// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package archive

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	archiveOpens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_archive_opens",
		Help: "Count of archives opened.",
	})

	archiveOpenErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_archive_open_errors",
		Help: "Count of archive opens that failed validation.",
	})

	entryReads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_entry_reads",
		Help: "Count of entry payloads read.",
	})

	entryReadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_entry_read_bytes",
		Help: "Count of decoded payload bytes delivered to readers.",
	})

	integrityFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_integrity_failures",
		Help: "Count of entry reads failing checksum or length verification.",
	})

	entryInserts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_entry_inserts",
		Help: "Count of entries inserted.",
	})

	entryInsertBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_entry_insert_bytes",
		Help: "Count of stored payload bytes written by insertions.",
	})

	entryRemovals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_entry_removals",
		Help: "Count of entries removed.",
	})

	tableRehashes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_table_rehashes",
		Help: "Count of on-disk index table widenings.",
	})

	repacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_repacks",
		Help: "Count of archive repacks.",
	})

	repackReclaimedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pakarc_repack_reclaimed_bytes",
		Help: "Count of bytes reclaimed by repacking.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		// Read path
		archiveOpens,
		archiveOpenErrors,
		entryReads,
		entryReadBytes,
		integrityFailures,

		// Write path
		entryInserts,
		entryInsertBytes,
		entryRemovals,
		tableRehashes,
		repacks,
		repackReclaimedBytes,
	)
}
