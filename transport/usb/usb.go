// Package usb is the libusb-backed transport Backend for CH341A adapters.
//
// It requires cgo and libusb-1.0 at build time. On Linux the current user
// needs write access to the adapter's /dev/bus/usb node, typically granted
// with a udev rule:
//
//	SUBSYSTEM=="usb", ATTR{idVendor}=="1a86", ATTR{idProduct}=="5512", MODE="0666"
package usb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"

	"github.com/moffa90/go-ch341prog/protocol"
	"github.com/moffa90/go-ch341prog/transport"
)

// Backend enumerates and opens CH341A adapters through libusb.
type Backend struct {
	ctx     *gousb.Context
	vendor  gousb.ID
	product gousb.ID
}

// NewBackend creates a backend matching the default CH341A VID/PID.
func NewBackend() *Backend {
	return NewBackendWithIDs(protocol.VendorID, protocol.ProductID)
}

// NewBackendWithIDs creates a backend matching a custom VID/PID, for
// adapters with reprogrammed descriptors.
func NewBackendWithIDs(vendor, product uint16) *Backend {
	return &Backend{
		ctx:     gousb.NewContext(),
		vendor:  gousb.ID(vendor),
		product: gousb.ID(product),
	}
}

// List returns the attached adapters without opening them.
func (b *Backend) List(ctx context.Context) ([]transport.AdapterInfo, error) {
	var found []transport.AdapterInfo

	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == b.vendor && desc.Product == b.product {
			found = append(found, transport.AdapterInfo{
				ID:          adapterID(desc.Bus, desc.Address),
				Bus:         desc.Bus,
				Address:     desc.Address,
				VendorID:    uint16(desc.Vendor),
				ProductID:   uint16(desc.Product),
				Description: "CH341A USB-I2C bridge",
			})
		}
		return false
	})
	closeAll(devs)
	if err != nil {
		return nil, mapError(err)
	}

	return found, nil
}

// Open claims the bulk interface of the given adapter.
func (b *Backend) Open(ctx context.Context, info transport.AdapterInfo) (transport.Conn, error) {
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == b.vendor && desc.Product == b.product &&
			desc.Bus == info.Bus && desc.Address == info.Address
	})
	if err != nil {
		closeAll(devs)
		return nil, mapError(err)
	}
	if len(devs) == 0 {
		return nil, transport.ErrDeviceNotFound
	}
	dev := devs[0]
	closeAll(devs[1:])

	c := &conn{dev: dev}
	if err := c.claim(); err != nil {
		_ = c.Close()
		return nil, mapError(err)
	}
	return c, nil
}

// Close releases the libusb context.
func (b *Backend) Close() error {
	return b.ctx.Close()
}

type conn struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

func (c *conn) claim() error {
	// The kernel may have bound ch341 serial or i2c drivers to the interface.
	if err := c.dev.SetAutoDetach(true); err != nil {
		return fmt.Errorf("set auto detach: %w", err)
	}

	cfgNum, err := c.dev.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("active config: %w", err)
	}

	if c.cfg, err = c.dev.Config(cfgNum); err != nil {
		return fmt.Errorf("config %d: %w", cfgNum, err)
	}
	if c.intf, err = c.cfg.Interface(protocol.Interface, 0); err != nil {
		return fmt.Errorf("claim interface %d: %w", protocol.Interface, err)
	}
	if c.out, err = c.intf.OutEndpoint(protocol.EndpointOut & 0x0F); err != nil {
		return fmt.Errorf("out endpoint: %w", err)
	}
	if c.in, err = c.intf.InEndpoint(protocol.EndpointIn & 0x0F); err != nil {
		return fmt.Errorf("in endpoint: %w", err)
	}
	return nil
}

func (c *conn) WriteContext(ctx context.Context, p []byte) (int, error) {
	n, err := c.out.WriteContext(ctx, p)
	return n, mapTransferError(ctx, err)
}

func (c *conn) ReadContext(ctx context.Context, p []byte) (int, error) {
	n, err := c.in.ReadContext(ctx, p)
	return n, mapTransferError(ctx, err)
}

func (c *conn) Close() error {
	if c.intf != nil {
		c.intf.Close()
	}
	var err error
	if c.cfg != nil {
		err = c.cfg.Close()
	}
	if cerr := c.dev.Close(); err == nil {
		err = cerr
	}
	return err
}

func adapterID(bus, address int) string {
	return fmt.Sprintf("%d:%d", bus, address)
}

func closeAll(devs []*gousb.Device) {
	for _, d := range devs {
		_ = d.Close()
	}
}

// mapError translates libusb errors into transport errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gousb.ErrorAccess):
		return fmt.Errorf("%w: %w", transport.ErrPermissionDenied, err)
	case errors.Is(err, gousb.ErrorNoDevice), errors.Is(err, gousb.ErrorNotFound):
		return fmt.Errorf("%w: %w", transport.ErrDeviceNotFound, err)
	case errors.Is(err, gousb.ErrorTimeout):
		return fmt.Errorf("%w: %w", transport.ErrTimeout, err)
	default:
		return err
	}
}

func mapTransferError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.ErrorTimeout) ||
		(errors.Is(err, gousb.TransferCancelled) && ctx.Err() != nil) {
		return fmt.Errorf("%w: %w", transport.ErrTimeout, err)
	}
	return mapError(err)
}
