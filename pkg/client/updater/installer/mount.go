package installer

// Mounter attaches a vfat filesystem for the duration of a capsule install.
type Mounter interface {
	Mount(device, target string) error
	Unmount(target string) error
}
