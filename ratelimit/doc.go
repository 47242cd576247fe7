// Package ratelimit enforces a per-installation request budget with token
// buckets.
//
// Buckets refill lazily on each acquire based on elapsed time; no background
// timer runs. When the external API reports fewer remaining requests than
// locally tracked, TrueUp clamps the bucket downward so multiple processes
// sharing one quota converge instead of overrunning it.
package ratelimit
