// Package aoa drives an Android device through the AOA 2.0 accessory
// handshake and exposes the resulting bulk pipe as a plain byte
// read/write transport.
package aoa

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/gousb"
)

// AOA 2.0 vendor control requests, per the Android accessory protocol.
const (
	reqGetProtocol    = 51
	reqSendString     = 52
	reqStartAccessory = 53
)

// bmRequestType bytes for vendor-class control transfers on endpoint 0.
const (
	ctrlInVendorDevice  = 0xC0 // IN | TYPE_VENDOR | RECIPIENT_DEVICE
	ctrlOutVendorDevice = 0x40 // OUT | TYPE_VENDOR | RECIPIENT_DEVICE
)

// Accessory VID/PID once the device has switched into accessory mode.
const (
	AccessoryVID    gousb.ID = 0x18D1
	AccessoryPID    gousb.ID = 0x2D00
	AccessoryADBPID gousb.ID = 0x2D01
)

const (
	bulkInterfaceNum = 0
	bulkAltSetting   = 0
	configNum        = 1

	ctrlTimeout      = 1 * time.Second
	reconnectPoll    = 100 * time.Millisecond
	reconnectRetries = 30
)

// Identity is the accessory identification string set sent during the
// handshake, in Android's fixed six-string order.
type Identity struct {
	Manufacturer string
	Model        string
	Description  string
	Version      string
	URI          string
	Serial       string
}

func (id Identity) strings() [6]string {
	return [6]string{id.Manufacturer, id.Model, id.Description, id.Version, id.URI, id.Serial}
}

var (
	// ErrNotConnected is returned by Read/Write when no device is attached.
	ErrNotConnected = errors.New("aoa: not connected")
	// ErrNoDevice covers handshake failures where no usable Android device was found.
	ErrNoDevice = errors.New("aoa: no compatible android device found")
)

// Host is an AOA 2.0 host-side transport. The zero value is unconnected;
// call Connect before Read/Write, and Disconnect to release USB resources.
// Not safe for concurrent use across goroutines other than at most one
// reader and one writer (matching the single USB pump that owns it).
type Host struct {
	identity     Identity
	accessoryVID gousb.ID
	accessoryPID gousb.ID

	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epIn   *gousb.InEndpoint
	epOut  *gousb.OutEndpoint

	connected bool
}

// NewHost builds an unconnected host that will identify itself with id
// during the handshake, and that expects the device to reattach as
// (AccessoryVID, AccessoryPID) once it switches into accessory mode.
func NewHost(id Identity) *Host {
	return &Host{identity: id, accessoryVID: AccessoryVID, accessoryPID: AccessoryPID}
}

// WithAccessoryIDs overrides the VID/PID this host expects to see once
// the device has switched into accessory mode, for peers that brand
// their accessory-mode identity differently from the stock Android IDs.
func (h *Host) WithAccessoryIDs(vid, pid uint16) *Host {
	h.accessoryVID = gousb.ID(vid)
	h.accessoryPID = gousb.ID(pid)
	return h
}

// IsConnected reports whether the bulk pipe is currently claimed and usable.
func (h *Host) IsConnected() bool {
	return h.connected
}

// Connect runs the full handshake: if a device is already in accessory
// mode it's used directly, otherwise an Android device is switched into
// accessory mode and polled for reattachment, then the bulk interface is
// claimed.
func (h *Host) Connect() error {
	h.ctx = gousb.NewContext()

	dev, err := h.findAccessoryDevice()
	if err != nil {
		h.ctx.Close()
		h.ctx = nil
		return err
	}
	if dev == nil {
		dev, err = h.switchToAccessoryMode()
		if err != nil {
			h.ctx.Close()
			h.ctx = nil
			return err
		}
	}

	h.dev = dev
	if err := h.claimBulkInterface(); err != nil {
		h.teardown()
		return err
	}

	h.connected = true
	log.Println("aoa: connected to accessory")
	return nil
}

// Disconnect releases the USB interface, device and context, if held. Safe
// to call on an already-disconnected host.
func (h *Host) Disconnect() {
	h.connected = false
	h.teardown()
	log.Println("aoa: disconnected")
}

func (h *Host) teardown() {
	if h.intf != nil {
		h.intf.Close()
		h.intf = nil
	}
	if h.cfg != nil {
		h.cfg.Close()
		h.cfg = nil
	}
	if h.dev != nil {
		h.dev.Close()
		h.dev = nil
	}
	if h.ctx != nil {
		h.ctx.Close()
		h.ctx = nil
	}
	h.epIn = nil
	h.epOut = nil
}

// Write sends data out the bulk OUT endpoint. Reports false on any error,
// including a partial write.
func (h *Host) Write(data []byte) bool {
	if !h.connected || h.epOut == nil {
		return false
	}
	n, err := h.epOut.Write(data)
	if err != nil {
		log.Printf("aoa: write error: %v", err)
		return false
	}
	return n == len(data)
}

// Read pulls up to len(buf) bytes from the bulk IN endpoint within timeout.
// A timeout is not an error: it returns (0, nil), matching the
// timeout-is-not-fatal semantics the USB pump relies on to poll without
// tearing the pipeline down.
func (h *Host) Read(buf []byte, timeout time.Duration) (int, error) {
	if !h.connected || h.epIn == nil {
		return 0, ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := h.epIn.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil
		}
		return 0, fmt.Errorf("aoa: read: %w", err)
	}
	return n, nil
}

// findAccessoryDevice looks for a device already presenting the AOA
// accessory VID/PID pair (either plain accessory or accessory+ADB).
func (h *Host) findAccessoryDevice() (*gousb.Device, error) {
	devs, err := h.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != h.accessoryVID {
			return false
		}
		if desc.Product == h.accessoryPID {
			return true
		}
		return h.accessoryPID == AccessoryPID && desc.Product == AccessoryADBPID
	})
	if err != nil {
		return nil, fmt.Errorf("aoa: enumerate accessory devices: %w", err)
	}
	if len(devs) == 0 {
		return nil, nil
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}
	return devs[0], nil
}

// switchToAccessoryMode finds any attached Android device speaking AOA,
// sends the identification strings, starts accessory mode, and polls for
// the device to reattach with the accessory VID/PID.
func (h *Host) switchToAccessoryMode() (*gousb.Device, error) {
	target, err := h.findAOACapableDevice()
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrNoDevice
	}
	defer target.Close()

	if err := h.sendIdentityStrings(target); err != nil {
		return nil, err
	}
	if err := h.startAccessory(target); err != nil {
		return nil, err
	}

	log.Println("aoa: waiting for device to reattach in accessory mode")
	for i := 0; i < reconnectRetries; i++ {
		time.Sleep(reconnectPoll)
		dev, err := h.findAccessoryDevice()
		if err != nil {
			return nil, err
		}
		if dev != nil {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("aoa: %w: device did not reattach as accessory", ErrNoDevice)
}

// findAOACapableDevice enumerates every attached USB device and asks each
// for its AOA protocol version, returning the first that answers with a
// version >= 1.
func (h *Host) findAOACapableDevice() (*gousb.Device, error) {
	devs, err := h.ctx.OpenDevices(func(*gousb.DeviceDesc) bool { return true })
	if err != nil {
		return nil, fmt.Errorf("aoa: enumerate devices: %w", err)
	}

	for _, dev := range devs {
		version, err := h.protocolVersion(dev)
		if err == nil && version >= 1 {
			log.Printf("aoa: found AOA-capable device (protocol v%d)", version)
			for _, other := range devs {
				if other != dev {
					other.Close()
				}
			}
			return dev, nil
		}
		dev.Close()
	}
	return nil, nil
}

func (h *Host) protocolVersion(dev *gousb.Device) (int, error) {
	buf := make([]byte, 2)
	n, err := dev.Control(ctrlInVendorDevice, reqGetProtocol, 0, 0, buf)
	if err != nil {
		return -1, err
	}
	if n < 2 {
		return -1, fmt.Errorf("aoa: short protocol version response (%d bytes)", n)
	}
	return int(buf[0]) | int(buf[1])<<8, nil
}

func (h *Host) sendIdentityStrings(dev *gousb.Device) error {
	for index, s := range h.identity.strings() {
		payload := append([]byte(s), 0)
		if _, err := dev.Control(ctrlOutVendorDevice, reqSendString, 0, uint16(index), payload); err != nil {
			return fmt.Errorf("aoa: send identity string %d: %w", index, err)
		}
	}
	return nil
}

func (h *Host) startAccessory(dev *gousb.Device) error {
	if _, err := dev.Control(ctrlOutVendorDevice, reqStartAccessory, 0, 0, nil); err != nil {
		return fmt.Errorf("aoa: start accessory mode: %w", err)
	}
	return nil
}

// claimBulkInterface detaches any kernel driver (ignoring "not attached"
// style errors), claims interface 0, and locates the first bulk IN/OUT
// endpoint pair.
func (h *Host) claimBulkInterface() error {
	if err := h.dev.SetAutoDetach(true); err != nil {
		log.Printf("aoa: SetAutoDetach: %v (continuing)", err)
	}

	cfg, err := h.dev.Config(configNum)
	if err != nil {
		return fmt.Errorf("aoa: set config: %w", err)
	}
	h.cfg = cfg

	intf, err := cfg.Interface(bulkInterfaceNum, bulkAltSetting)
	if err != nil {
		return fmt.Errorf("aoa: claim interface: %w", err)
	}
	h.intf = intf

	epIn, epOut, err := firstBulkEndpoints(intf)
	if err != nil {
		return err
	}
	h.epIn = epIn
	h.epOut = epOut
	log.Printf("aoa: bulk endpoints claimed (in=%d out=%d)", epIn.Desc.Number, epOut.Desc.Number)
	return nil
}

// firstBulkEndpoints scans an interface's current alt setting for its
// first bulk IN and OUT endpoints.
func firstBulkEndpoints(intf *gousb.Interface) (*gousb.InEndpoint, *gousb.OutEndpoint, error) {
	inNum, outNum := -1, -1
	for _, desc := range intf.Setting.Endpoints {
		if desc.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if desc.Direction == gousb.EndpointDirectionIn && inNum < 0 {
			inNum = desc.Number
		}
		if desc.Direction == gousb.EndpointDirectionOut && outNum < 0 {
			outNum = desc.Number
		}
	}
	if inNum < 0 || outNum < 0 {
		return nil, nil, errors.New("aoa: no bulk IN/OUT endpoint pair found")
	}

	epIn, err := intf.InEndpoint(inNum)
	if err != nil {
		return nil, nil, fmt.Errorf("aoa: open IN endpoint: %w", err)
	}
	epOut, err := intf.OutEndpoint(outNum)
	if err != nil {
		return nil, nil, fmt.Errorf("aoa: open OUT endpoint: %w", err)
	}
	return epIn, epOut, nil
}
