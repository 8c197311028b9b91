package syslock

import "github.com/dreamware/kvbroker/internal/shmregion"

// createRegion adapts shmregion.Create to the package-local region
// interface so syslock's contention loop never depends on shmregion's
// concrete type directly.
func createRegion(name string, size int) (region, error) {
	return shmregion.Create(name, size)
}
