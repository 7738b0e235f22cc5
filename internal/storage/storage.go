// Package storage publishes finished job artifacts. It defines the Publisher
// interface (port) for hexagonal architecture and implementations for a local
// public directory and S3.
package storage

import "context"

// Artifact describes a published output video.
type Artifact struct {
	// Name is the published file name, e.g. clip_stabilized_a1b2c3d4.mov.
	Name string
	// Link is the download path served by the HTTP layer.
	Link string
	// AbsolutePath is the absolute path of the published file on disk.
	AbsolutePath string
	// RemoteURL is the S3 URL when remote upload is configured, empty otherwise.
	RemoteURL string
}

// Publisher moves a finished artifact out of a job workspace into public
// storage. Publication must be atomic: a file visible in the public directory
// is always complete.
type Publisher interface {
	// Publish places the file at srcPath into public storage under a unique
	// name derived from base and suffix. srcPath may live on a different
	// filesystem than the public directory.
	Publish(ctx context.Context, srcPath, base, suffix string) (Artifact, error)
}
