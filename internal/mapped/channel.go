package mapped

import (
	"fmt"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/shm"
)

// ChannelConfig names the three OS objects of one channel.
type ChannelConfig struct {
	Name    string // label used in logs and metrics, e.g. "telemetry"
	Buffer1 string
	Buffer2 string
	Mutex   string
}

// SharedChannel holds the handles of one connected channel: two regions of
// the record size and the lock guarding them.
type SharedChannel struct {
	opener shm.Opener
	config ChannelConfig
	size   int

	buffers [2]shm.Region
	mutex   shm.Mutex
}

// NewSharedChannel returns a disconnected channel for records of size bytes.
func NewSharedChannel(opener shm.Opener, config ChannelConfig, size int) *SharedChannel {
	return &SharedChannel{opener: opener, config: config, size: size}
}

// Config returns the channel's resource names.
func (c *SharedChannel) Config() ChannelConfig { return c.config }

// Size returns the record size in bytes.
func (c *SharedChannel) Size() int { return c.size }

// Connected reports whether all three handles are open.
func (c *SharedChannel) Connected() bool { return c.mutex != nil }

// Connect opens both regions and the lock. It is a no-op on a connected
// channel. On failure everything already opened is closed again and the
// returned error matches ErrResourceNotFound when a name does not exist yet.
func (c *SharedChannel) Connect() error {
	if c.Connected() {
		return nil
	}

	var opened [2]shm.Region
	for i, name := range []string{c.config.Buffer1, c.config.Buffer2} {
		region, err := c.opener.OpenRegion(name, c.size)
		if err != nil {
			closeRegions(opened[:i])
			return connectError(c.config, name, err)
		}
		opened[i] = region
	}

	mutex, err := c.opener.OpenMutex(c.config.Mutex)
	if err != nil {
		closeRegions(opened[:])
		return connectError(c.config, c.config.Mutex, err)
	}

	c.buffers = opened
	c.mutex = mutex
	getLogger().Debug("channel connected",
		logger.String("channel", c.config.Name),
		logger.Int("size", c.size))
	return nil
}

// Disconnect closes all handles. Calling it on a disconnected channel is a no-op.
func (c *SharedChannel) Disconnect() error {
	if !c.Connected() {
		return nil
	}

	var errs []error
	if err := c.mutex.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, region := range c.buffers {
		if err := region.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.buffers = [2]shm.Region{}
	c.mutex = nil

	getLogger().Debug("channel disconnected", logger.String("channel", c.config.Name))
	return errors.Join(errs...)
}

// Check verifies both regions are still the ones that were opened.
func (c *SharedChannel) Check() error {
	if !c.Connected() {
		return ErrNotConnected
	}
	for _, region := range c.buffers {
		if err := region.Check(); err != nil {
			return err
		}
	}
	return nil
}

func closeRegions(regions []shm.Region) {
	for _, region := range regions {
		if region != nil {
			_ = region.Close()
		}
	}
}

func connectError(config ChannelConfig, resource string, err error) error {
	category := errors.CategorySharedMemory
	if !errors.Is(err, shm.ErrNotExist) {
		category = errors.CategorySystem
	}
	return errors.New(fmt.Errorf("connect %s: %w", config.Name, err)).
		Component(componentMapped).
		Category(category).
		ChannelContext(config.Name, resource).
		Build()
}
