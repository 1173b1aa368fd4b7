// Package ports discovers which processes hold the host ports a deployment
// wants to bind, and can free them. Discovery walks /proc/net/tcp and maps
// listening socket inodes back to PIDs through /proc/<pid>/fd.
package ports

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Listening sockets have state 0A in /proc/net/tcp.
const stateListen = "0A"

// Occupant is a process observed listening on a host port.
type Occupant struct {
	Port  int
	PID   int
	Name  string
	Inode uint64
}

// Scanner discovers port occupants. procRoot is "/proc" in production and a
// fixture directory in tests.
type Scanner struct {
	procRoot string
}

// NewScanner creates a scanner over the live /proc filesystem.
func NewScanner() *Scanner {
	return &Scanner{procRoot: "/proc"}
}

// NewScannerAt creates a scanner over an alternate proc root.
func NewScannerAt(root string) *Scanner {
	return &Scanner{procRoot: root}
}

// Occupants reports which of the given ports have a listener, keyed by port.
// Ports with no listener are absent from the result. A listener whose PID
// cannot be resolved (typically a process owned by another user) is reported
// with PID 0.
func (s *Scanner) Occupants(ports []int) (map[int]Occupant, error) {
	wanted := make(map[int]bool, len(ports))
	for _, p := range ports {
		wanted[p] = true
	}

	listeners := map[int]uint64{} // port -> socket inode
	for _, table := range []string{"net/tcp", "net/tcp6"} {
		if err := s.collectListeners(filepath.Join(s.procRoot, table), wanted, listeners); err != nil {
			// tcp6 is absent on hosts without IPv6.
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	if len(listeners) == 0 {
		return map[int]Occupant{}, nil
	}

	inodeToPID := s.socketOwners(listeners)

	result := make(map[int]Occupant, len(listeners))
	for port, inode := range listeners {
		occ := Occupant{Port: port, Inode: inode}
		if pid, ok := inodeToPID[inode]; ok {
			occ.PID = pid
			occ.Name = s.processName(pid)
		}
		result[port] = occ
	}
	return result, nil
}

func (s *Scanner) collectListeners(path string, wanted map[int]bool, out map[int]uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return parseTCPTable(f, wanted, out)
}

// parseTCPTable scans a /proc/net/tcp-format table for listening sockets on
// the wanted ports, recording port -> inode.
func parseTCPTable(r io.Reader, wanted map[int]bool, out map[int]uint64) error {
	scanner := bufio.NewScanner(r)
	scanner.Scan() // header line
	for scanner.Scan() {
		port, inode, listening, ok := parseTCPLine(scanner.Text())
		if !ok || !listening || !wanted[port] {
			continue
		}
		if _, seen := out[port]; !seen {
			out[port] = inode
		}
	}
	return scanner.Err()
}

// parseTCPLine parses one /proc/net/tcp entry:
//
//	sl local_address rem_address st tx_queue:rx_queue tr:tm->when retrnsmt uid timeout inode ...
//
// The local port is the hex suffix of local_address; inode is field 9.
func parseTCPLine(line string) (port int, inode uint64, listening bool, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 10 {
		return 0, 0, false, false
	}

	local := fields[1]
	colon := strings.LastIndex(local, ":")
	if colon < 0 {
		return 0, 0, false, false
	}
	portHex, err := strconv.ParseUint(local[colon+1:], 16, 16)
	if err != nil {
		return 0, 0, false, false
	}

	inode, err = strconv.ParseUint(fields[9], 10, 64)
	if err != nil {
		return 0, 0, false, false
	}

	return int(portHex), inode, fields[3] == stateListen, true
}

// socketOwners walks /proc/<pid>/fd looking for "socket:[inode]" links and
// returns inode -> pid for the inodes of interest.
func (s *Scanner) socketOwners(listeners map[int]uint64) map[uint64]int {
	wanted := make(map[uint64]bool, len(listeners))
	for _, inode := range listeners {
		wanted[inode] = true
	}

	owners := map[uint64]int{}

	entries, err := os.ReadDir(s.procRoot)
	if err != nil {
		return owners
	}

	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		fdDir := filepath.Join(s.procRoot, entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			// Not our process; /proc/<pid>/fd requires ownership.
			continue
		}

		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			inode, ok := socketInode(target)
			if !ok || !wanted[inode] {
				continue
			}
			if _, claimed := owners[inode]; !claimed {
				owners[inode] = pid
			}
		}

		if len(owners) == len(wanted) {
			break
		}
	}
	return owners
}

// socketInode extracts N from a link target of the form "socket:[N]".
func socketInode(target string) (uint64, bool) {
	if !strings.HasPrefix(target, "socket:[") || !strings.HasSuffix(target, "]") {
		return 0, false
	}
	inode, err := strconv.ParseUint(target[len("socket:["):len(target)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}

// processName reads the short command name for a PID.
func (s *Scanner) processName(pid int) string {
	data, err := os.ReadFile(filepath.Join(s.procRoot, strconv.Itoa(pid), "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Describe renders an occupant for operator-facing messages.
func (o Occupant) Describe() string {
	if o.PID == 0 {
		return fmt.Sprintf("port %d held by unknown process", o.Port)
	}
	if o.Name == "" {
		return fmt.Sprintf("port %d held by pid %d", o.Port, o.PID)
	}
	return fmt.Sprintf("port %d held by %s (pid %d)", o.Port, o.Name, o.PID)
}
