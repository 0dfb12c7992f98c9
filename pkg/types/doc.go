/*
Package types provides the core interfaces and data structures shared across
the ingestion engine: job/file tracking records, cache entries, and the
storage/backend/cache/metrics contracts.

# Core Interfaces

StorageProvider abstracts where a job's output files land: local disk or an
S3 bucket, mirroring the two backends a job can target.

Backend abstracts remote object storage operations used by the S3 download
engine, independent of any particular SDK.

Cache describes a byte-valued cache with byte-targeted eviction. The
reprojection result cache and the disk-resident temp cache have their own
APIs and do not implement it.

MetricsCollector is implemented by internal/metrics and is what the
registry, download engine, and reprojection cache take, so they can be
tested against fakes. ConfigManager, HealthChecker, and ConnectionManager
have no implementation in this module.

# Data Structures

Job and FileEntry are the persisted unit of work: a Job groups one or more
FileEntry records under a single source identifier and download directory.
JobSnapshot is the read-only projection returned by the control-plane API.

ReprojectionEntry and TempCacheEntry describe entries of the two caches; the
cache packages keep their own records and do not use them. DownloadSpeedWindow
holds the sliding-window samples used to compute throughput and ETA.
*/
package types
