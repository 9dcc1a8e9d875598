//go:build !linux

package files

// Usage is not implemented off Linux and reports an empty filesystem.
func (s *Store) Usage() (total, free uint64) {
	return 0, 0
}
