// Package flock provides cross-platform file locking utilities.
//
// This package provides exclusive, non-blocking file locks that work on both
// Unix and Windows systems. The checkpoint store uses it to serialize
// writers; the run-level lock is a separate existence-based lock file so it
// can outlive a crashed holder.
//
// Usage:
//
//	file, _ := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
//	if err := flock.Exclusive(file.Fd()); err != nil {
//	    // Lock not acquired - file is in use
//	}
//	defer flock.Unlock(file.Fd())
package flock
