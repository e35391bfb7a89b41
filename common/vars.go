// Package common holds process-wide settings shared by the commands.
package common

// PackageName is used as the metrics namespace and default log service.
const PackageName = "storage-adapter"

// Version is set at build time with -ldflags "-X github.com/ruteri/storage-adapter/common.Version=..."
var Version = "dev"
