/*
Package s3 provides an S3 StorageProvider backend for the download engine,
with CargoShip-accelerated uploads and a pooled client for GET/HEAD/DELETE.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                 types.Backend interface                     │
	└─────────────────────────────────────────────────────────────┘
	                          │
	┌─────────────────────────────────────────────────────────────┐
	│                    S3 Backend Layer                         │
	│  ┌─────────────────┐      ┌──────────────────────────────┐ │
	│  │ Connection Pool  │      │  CargoShip accelerated PUT   │ │
	│  └─────────────────┘      └──────────────────────────────┘ │
	└─────────────────────────────────────────────────────────────┘
	                          │
	┌─────────────────────────────────────────────────────────────┐
	│                      AWS S3 Service                         │
	└─────────────────────────────────────────────────────────────┘

# CargoShip integration

PutObject routes through a CargoShip transporter targeting a configurable
throughput (TargetThroughput, MB/s) via BBR/CUBIC-aware multipart uploads.
GetObject and GetObjectRange use the plain AWS SDK client pool — the
download engine issues its own ranged reads, one chunk at a time per file,
so CargoShip's upload-side optimization has no read-path counterpart here.

# Usage

	backend, err := s3.NewBackend(ctx, "archive-bucket", s3.NewDefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Close()

	info, err := backend.HeadObject(ctx, "jw01234/obs001/file.fits")

	var buf bytes.Buffer
	err = backend.GetObjectRange(ctx, "jw01234/obs001/file.fits", 0, 1<<20, &buf)

	err = backend.PutObject(ctx, "jw01234/obs001/mosaic.fits", data)

# Error handling

Backend methods pass AWS SDK errors through translateError, which returns
plain fmt errors: a missing key or bucket becomes an "object not found" or
"bucket not found" message, and any other error is wrapped with the
operation name and key. No other condition is classified.

# Thread safety

All public methods are safe for concurrent use; the connection pool and
metrics counters are protected by their own synchronization.
*/
package s3
