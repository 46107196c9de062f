package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/diskfs/go-diskfs/partition/gpt"
	log "github.com/sirupsen/logrus"
)

// ESPTypeGUID is the GPT partition type of an EFI system partition.
const ESPTypeGUID = string(gpt.EFISystemPartition)

const (
	DefaultPartUUIDDir = "/dev/disk/by-partuuid"
	DefaultSysBlockDir = "/sys/class/block"
)

// DefaultESPCandidates are scanned in order when no devices are configured.
var DefaultESPCandidates = []string{"/dev/mmcblk0", "/dev/nvme0n1"}

// ESPFinder locates the partition device of the EFI system partition.
type ESPFinder interface {
	FindESP(ctx context.Context) (string, error)
}

// Partition is the part of a GPT entry ESP discovery looks at.
// Empty entries are dropped while reading, so the position in a table says
// nothing about the kernel's partition number.
type Partition struct {
	GUID string
	Type string
	// Start is the first sector in 512 byte units.
	Start uint64
}

// PartitionTableReader lists the partitions of a disk.
type PartitionTableReader func(device string) ([]Partition, error)

// ReadGPT reads the partition table of device with go-diskfs.
func ReadGPT(device string) ([]Partition, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	table, err := gpt.Read(f, 512, 512)
	if err != nil {
		return nil, fmt.Errorf("failed to read partition table of %s: %w", device, err)
	}
	parts := make([]Partition, 0, len(table.Partitions))
	for _, p := range table.Partitions {
		if p == nil || p.Type == gpt.Unused {
			continue
		}
		parts = append(parts, Partition{GUID: p.GUID, Type: string(p.Type), Start: p.Start})
	}
	return parts, nil
}

// NodeResolver maps a partition of disk to its device node.
type NodeResolver interface {
	Resolve(disk string, p Partition) (string, error)
}

// SysfsResolver looks a partition up by its unique GUID in the udev by-partuuid
// links and falls back to matching its start sector against sysfs.
type SysfsResolver struct {
	PartUUIDDir string
	SysBlockDir string
}

func NewSysfsResolver() *SysfsResolver {
	return &SysfsResolver{PartUUIDDir: DefaultPartUUIDDir, SysBlockDir: DefaultSysBlockDir}
}

func (r *SysfsResolver) Resolve(disk string, p Partition) (string, error) {
	if p.GUID != "" && r.PartUUIDDir != "" {
		node, err := filepath.EvalSymlinks(filepath.Join(r.PartUUIDDir, strings.ToLower(p.GUID)))
		if err == nil {
			return node, nil
		}
		log.WithError(err).Debugf("partition %s has no by-partuuid link", p.GUID)
	}

	// partitions of a disk show up as subdirectories of the disk in sysfs
	diskDir := filepath.Join(r.SysBlockDir, filepath.Base(disk))
	entries, err := os.ReadDir(diskDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPartitionNodeNotFound, disk, err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(diskDir, e.Name(), "start"))
		if err != nil {
			continue
		}
		start, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			log.WithError(err).Debugf("unexpected start of %s", e.Name())
			continue
		}
		if start == p.Start {
			return filepath.Join(filepath.Dir(disk), e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: no partition of %s starts at sector %d", ErrPartitionNodeNotFound, disk, p.Start)
}

// GPTScanner finds the ESP by scanning candidate disks in order.
// The first disk holding exactly one ESP wins; a disk with more than one is an error.
// Missing disks are skipped, a disk that exists but cannot be read stops the scan.
type GPTScanner struct {
	Candidates []string
	ReadTable  PartitionTableReader
	Resolver   NodeResolver
}

func NewGPTScanner(candidates []string) *GPTScanner {
	if len(candidates) == 0 {
		candidates = DefaultESPCandidates
	}
	return &GPTScanner{Candidates: candidates, ReadTable: ReadGPT, Resolver: NewSysfsResolver()}
}

func (s *GPTScanner) FindESP(ctx context.Context) (string, error) {
	for _, dev := range s.Candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		parts, err := s.ReadTable(dev)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("ESP candidate %s does not exist", dev)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to scan ESP candidate %s: %w", dev, err)
		}
		var esps []Partition
		for _, p := range parts {
			if strings.EqualFold(p.Type, ESPTypeGUID) {
				esps = append(esps, p)
			}
		}
		switch len(esps) {
		case 0:
			continue
		case 1:
			node, err := s.Resolver.Resolve(dev, esps[0])
			if err != nil {
				return "", err
			}
			log.Infof("found EFI system partition %s", node)
			return node, nil
		default:
			return "", fmt.Errorf("%w: %d on %s", ErrMultipleESPPartitions, len(esps), dev)
		}
	}
	return "", fmt.Errorf("%w: scanned %s", ErrESPPartitionNotFound, strings.Join(s.Candidates, ", "))
}
