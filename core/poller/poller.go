package poller

// Interest is a set of readiness conditions a descriptor is watched for
type Interest uint32

// Event is a single readiness notification returned by Wait
type Event struct {
	Fd     int
	Events uint32
}

// Poller is the I/O multiplexing interface
type Poller interface {
	// Add registers fd. Level-triggered descriptors keep reporting readiness
	// while it lasts; one-shot descriptors fire once until re-armed with Mod.
	Add(fd int, in Interest, oneShot bool) error
	// Mod re-arms a one-shot descriptor for the given interest.
	Mod(fd int, in Interest) error
	Remove(fd int) error
	Wait(events []Event, timeout int) (int, error)
	Close() error
}

// Registrar is the part of a Poller a connection needs to re-arm or drop itself
type Registrar interface {
	Mod(fd int, in Interest) error
	Remove(fd int) error
}
