package worker

import (
	"os"
	"runtime"
	"syscall"
)

// LocalInfo snapshots the host facts a worker reports at registration time,
// read straight off the kernel via syscall.Sysinfo/Statfs.
type LocalInfo struct {
	Hostname  string
	OS        string
	CPUCount  int
	RAMTotal  int64
	RAMAvail  int64
	DiskTotal int64
}

// GatherLocalInfo inspects the local host and the filesystem backing
// resultsRoot. Any syscall failure leaves the corresponding field zero
// rather than failing registration outright.
func GatherLocalInfo(resultsRoot string) LocalInfo {
	info := LocalInfo{
		OS:       runtime.GOOS,
		CPUCount: runtime.NumCPU(),
	}
	if h, err := os.Hostname(); err == nil {
		info.Hostname = h
	}

	var sys syscall.Sysinfo_t
	if err := syscall.Sysinfo(&sys); err == nil {
		unit := int64(sys.Unit)
		if unit == 0 {
			unit = 1
		}
		info.RAMTotal = int64(sys.Totalram) * unit
		info.RAMAvail = int64(sys.Freeram) * unit
	}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(resultsRoot, &fs); err == nil {
		info.DiskTotal = int64(fs.Blocks) * int64(fs.Bsize)
	}

	return info
}
