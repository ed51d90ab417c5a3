package bus

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes bus backends.
type InterfaceKind string

const (
	InterfaceKindCH341   InterfaceKind = "ch341"
	InterfaceKindSim     InterfaceKind = "simulator"
	InterfaceKindUnknown InterfaceKind = "unknown"
)

// InterfaceInfo describes a detected bus interface.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return fmt.Sprintf("Interface %04X:%04X", i.VendorID, i.ProductID)
}

// DiscoverInterfaces enumerates connected USB-I2C bridges that match known
// VID/PID pairs. It always returns the simulator entry so a run can be
// rehearsed without the rig attached.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if info, ok := classifyUSBDevice(desc); ok {
			results = append(results, info)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})

	return results, nil
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (InterfaceInfo, bool) {
	for _, known := range knownCH341VIDPIDs {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return InterfaceInfo{
				Kind:        InterfaceKindCH341,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return InterfaceInfo{}, false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownCH341VIDPIDs = []knownUSBDevice{
	{VendorID: VendorIDWCH, ProductID: ProductIDCH341A, Description: "WCH CH341A USB-I2C"},
	{VendorID: VendorIDWCH, ProductID: 0x5523, Description: "WCH CH341 (UART mode, no I2C)"},
}
