/*
Package config provides layered configuration management for the ingestion
engine: compiled-in defaults, an optional YAML file, then environment
variables, each overriding the last.

# Sections

Storage selects the destination StorageProvider (local disk or S3) and its
connection parameters. Download tunes the chunked transfer engine (chunk
size, concurrency, retry/timeout knobs). Network carries the retry and
per-host circuit breaker settings shared by the download engine's HTTP
client. ReprojCache and TempCache configure the two LRU caches. Registry
configures the job state journal's on-disk location and retention.

Environment variables follow the naming used by the original Python service
(STORAGE_PROVIDER, STORAGE_TEMP_CACHE_MAX_BYTES, and so on) so existing
deployment environments carry over unchanged.
*/
package config
