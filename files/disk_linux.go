package files

import "syscall"

// Usage returns total and free bytes of the filesystem holding the store.
func (s *Store) Usage() (total, free uint64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.dir, &stat); err != nil {
		return 0, 0
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize)
}
